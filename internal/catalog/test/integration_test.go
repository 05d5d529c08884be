package test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/policydocs/internal/catalog/auth"
	"github.com/gartstein/policydocs/internal/catalog/controller"
	"github.com/gartstein/policydocs/internal/catalog/db"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/events"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"github.com/gartstein/policydocs/internal/catalog/storage"
	"github.com/gartstein/policydocs/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const (
	topic   = "document-events-it"
	pdfBody = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"
)

var kafkaBrokers = []string{"localhost:9092"}

type IntegrationTestSuite struct {
	suite.Suite
	dbRepo      *db.Repository
	kafkaReader *kafka.Reader
	producer    *events.Producer
	service     *controller.Service
	logger      *zap.Logger
	testTimeout time.Duration
}

// TestIntegrationSuite runs against the Postgres and Kafka of the local
// docker compose setup. Set POLICYDOCS_INTEGRATION=1 to enable it.
func TestIntegrationSuite(t *testing.T) {
	if testing.Short() || os.Getenv("POLICYDOCS_INTEGRATION") == "" {
		t.Skip("Skipping integration tests")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.logger = zap.NewNop()
	s.testTimeout = 20 * time.Second

	var err error
	s.dbRepo, err = initializeDBWithRetry()
	s.Require().NoError(err, "Database initialization failed")

	s.producer, s.kafkaReader, err = initializeKafkaWithRetry()
	s.Require().NoError(err, "Kafka initialization failed")

	store, err := storage.NewDiskStore(s.T().TempDir())
	s.Require().NoError(err)
	s.service = controller.NewService(s.dbRepo, store, s.producer, s.logger)
}

func retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	return policy
}

func initializeDBWithRetry() (*db.Repository, error) {
	cfg := &db.Config{
		Driver:   db.DriverPostgres,
		Host:     "localhost",
		Port:     5432,
		User:     "test",
		Password: "test",
		DBName:   "test",
		SSLMode:  "disable",
	}

	var repo *db.Repository
	err := backoff.Retry(func() error {
		var err error
		repo, err = db.NewRepository(cfg)
		return err
	}, retryPolicy())
	return repo, err
}

func initializeKafkaWithRetry() (*events.Producer, *kafka.Reader, error) {
	var producer *events.Producer
	err := backoff.Retry(func() error {
		var err error
		producer, err = events.NewProducer(kafkaBrokers, topic, zap.NewNop())
		return err
	}, retryPolicy())
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer initialization failed: %w", err)
	}

	err = backoff.Retry(func() error {
		conn, err := kafka.Dial("tcp", kafkaBrokers[0])
		if err != nil {
			return err
		}
		defer conn.Close()
		partitions, err := conn.ReadPartitions(topic)
		if err != nil || len(partitions) == 0 {
			return fmt.Errorf("topic %s not found", topic)
		}
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
	if err != nil {
		producer.Close()
		return nil, nil, fmt.Errorf("kafka topic check failed: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkaBrokers,
		Topic:       topic,
		GroupID:     "policydocs-it-" + uuid.NewString(),
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return producer, reader, nil
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.kafkaReader != nil {
		s.kafkaReader.Close()
	}
	if s.producer != nil {
		s.producer.Close()
	}
	if s.dbRepo != nil {
		s.dbRepo.Close()
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	err := s.dbRepo.Exec(ctx, "TRUNCATE TABLE histories, documents, products, categories, id_sequences, users, companies CASCADE")
	s.Require().NoError(err, "Failed to clean database")
}

// register creates a company with a unique name and returns its founder.
func (s *IntegrationTestSuite) register(ctx context.Context) *auth.Caller {
	name := "it" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	company, founder, err := s.service.RegisterCompany(ctx, models.NewCompany{
		Name:         name,
		FullName:     "Integration " + name,
		Email:        name + "@example.com",
		FirstName:    "Ann",
		LastName:     "Boss",
		PasswordHash: "hash",
	})
	s.Require().NoError(err)
	return &auth.Caller{User: *founder, Company: *company}
}

func (s *IntegrationTestSuite) TestDocumentLifecycle() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()
	caller := s.register(ctx)

	product, err := s.service.CreateProduct(ctx, caller, models.ProductInput{Name: "Term Life", Model: "TERM02"})
	s.Require().NoError(err)
	category, err := s.service.CreateCategory(ctx, caller, models.CategoryInput{Name: "Terms and conditions"})
	s.Require().NoError(err)

	in := models.NewDocument{
		ProductID:     product.CompanyProductID,
		CategoryID:    category.CompanyCategoryID,
		ValidityStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FileName:      "terms 2024.pdf",
		File:          strings.NewReader(pdfBody),
		Title:         "Terms 2024",
		Description:   "Standard terms.",
	}
	doc, notice, err := s.service.CreateDocument(ctx, caller, in)
	s.Require().NoError(err)
	s.Require().NotNil(notice)
	assert.Equal(s.T(), caller.Company.Name+"/terms_2024.pdf", doc.File)

	in.File = strings.NewReader(pdfBody)
	_, _, err = s.service.CreateDocument(ctx, caller, in)
	assert.ErrorIs(s.T(), err, e.ErrDuplicate)

	description := strings.Repeat("Cover applies worldwide except where excluded. ", 20)
	_, err = s.service.EditDocument(ctx, caller, models.DocumentUpdate{
		CompanyDocumentID: doc.CompanyDocumentID,
		Title:             utils.Ptr("Terms 2024 rev. 2"),
		Description:       utils.Ptr(description),
	})
	s.Require().NoError(err)

	entries, err := s.service.DocumentHistory(ctx, caller, doc.CompanyDocumentID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	for _, h := range entries {
		if h.Element == "description" {
			assert.Equal(s.T(), strings.TrimSpace(description), h.ChangedTo, "long values are kept whole")
		}
	}

	page, err := s.service.ListDocuments(ctx, caller, models.DocumentQuery{Phrase: "REV. 2"})
	s.Require().NoError(err)
	assert.EqualValues(s.T(), 1, page.Total)

	s.Require().NoError(s.service.DeleteDocument(ctx, caller, doc.CompanyDocumentID))
	_, err = s.service.GetDocument(ctx, caller, doc.CompanyDocumentID)
	assert.ErrorIs(s.T(), err, e.ErrNotFound)

	received := s.consumeEvents(caller.Company.Name, 3)
	types := make([]events.EventType, 0, len(received))
	for _, ev := range received {
		types = append(types, ev.Type)
	}
	assert.Equal(s.T(), []events.EventType{events.DocumentCreated, events.DocumentUpdated, events.DocumentDeleted}, types)
	require.Len(s.T(), received[1].Changes, 2)
	assert.Equal(s.T(), "title", received[1].Changes[0].Element)
	assert.Equal(s.T(), "description", received[1].Changes[1].Element)
}

func (s *IntegrationTestSuite) TestIdentifiersAreNotReused() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()
	caller := s.register(ctx)

	first, err := s.service.CreateCategory(ctx, caller, models.CategoryInput{Name: "Brochures"})
	s.Require().NoError(err)
	s.Require().NoError(s.service.DeleteCategory(ctx, caller, first.CompanyCategoryID))

	second, err := s.service.CreateCategory(ctx, caller, models.CategoryInput{Name: "Brochures"})
	s.Require().NoError(err)
	assert.Equal(s.T(), first.CompanyCategoryID+1, second.CompanyCategoryID)
}

// consumeEvents reads the next n events of company from the topic.
func (s *IntegrationTestSuite) consumeEvents(company string, n int) []events.Event {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var received []events.Event
	for len(received) < n {
		msg, err := s.kafkaReader.ReadMessage(ctx)
		if err != nil {
			s.T().Fatalf("Timeout: received %d of %d events: %v", len(received), n, err)
		}
		if string(msg.Key) != company {
			s.T().Logf("Skipping message with unmatched key: %s", string(msg.Key))
			continue
		}
		var event events.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			s.T().Fatalf("Failed to unmarshal Kafka message: %v", err)
		}
		received = append(received, event)
	}
	return received
}
