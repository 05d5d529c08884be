// Package filename derives storage keys for uploaded files. Keys live under
// the company's short name and never collide with a key already in use.
package filename

import (
	"context"
	"fmt"
	"path"
	"strings"

	e "github.com/gartstein/policydocs/internal/catalog/errors"
)

// maxAttempts bounds the search for a free suffix.
const maxAttempts = 1000

// Owner reports who uses a storage key. taken is true when the key cannot be
// used; ownerID is the company-local id of the document holding it, 0 when the
// key is occupied by something other than a document.
type Owner func(ctx context.Context, key string) (ownerID int, taken bool, err error)

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Key is the storage key, "{company}/{name}".
	Key string
	// Notice is set when the stored name differs from the sent one.
	Notice *Notice
}

// Notice tells the uploader that their file was stored under another name.
type Notice struct {
	// Sent is the file name as uploaded.
	Sent string
	// Cleaned is the sent name with spaces replaced.
	Cleaned string
	// Stored is the final file name.
	Stored string
	// ConflictingDocumentID is the company-local id of the document that
	// already owns Cleaned, or 0.
	ConflictingDocumentID int
}

// Message renders the notice for people.
func (n *Notice) Message() string {
	msg := fmt.Sprintf("The file %s has been saved as %s.", n.Sent, n.Stored)
	if n.ConflictingDocumentID > 0 {
		msg += fmt.Sprintf(" File with the name %s is already associated with the document #%d.",
			n.Cleaned, n.ConflictingDocumentID)
	}
	return msg
}

// Clean strips directories from the sent name and replaces every space with
// an underscore.
func Clean(sent string) string {
	name := strings.ReplaceAll(sent, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return strings.ReplaceAll(name, " ", "_")
}

// Resolve picks the storage key for sent within the company directory. When
// the cleaned name is taken, "_1", "_2", ... is inserted before the extension
// until a free key is found. A name without a base, such as "/" or " ", is a
// validation error.
func Resolve(ctx context.Context, company, sent string, owner Owner) (*Resolution, error) {
	cleaned := Clean(sent)
	if cleaned == "" {
		return nil, e.Invalid("file_name", "Enter a valid file name.")
	}

	key := company + "/" + cleaned
	conflictID, taken, err := owner(ctx, key)
	if err != nil {
		return nil, err
	}

	stored := cleaned
	if taken {
		ext := path.Ext(cleaned)
		stem := strings.TrimSuffix(cleaned, ext)
		found := false
		for i := 1; i <= maxAttempts; i++ {
			candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
			_, used, err := owner(ctx, company+"/"+candidate)
			if err != nil {
				return nil, err
			}
			if !used {
				stored = candidate
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no free name for %q after %d attempts", cleaned, maxAttempts)
		}
	}

	res := &Resolution{Key: company + "/" + stored}
	if stored != sent {
		res.Notice = &Notice{
			Sent:                  sent,
			Cleaned:               cleaned,
			Stored:                stored,
			ConflictingDocumentID: conflictID,
		}
	}
	return res, nil
}
