package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// ErrContentMismatch is returned when fetched bytes do not hash to the requested id.
var ErrContentMismatch = errors.New("content does not match its identifier")

var namespaces = map[interfaces.ContentType]string{
	interfaces.ArtifactType: "artifacts",
	interfaces.TermsType:    "terms",
}

func namespace(contentType interfaces.ContentType) (string, error) {
	ns, ok := namespaces[contentType]
	if !ok {
		return "", fmt.Errorf("unknown content type %d", int(contentType))
	}
	return ns, nil
}

func verifyContent(id interfaces.ContentID, data []byte) error {
	if got := interfaces.ComputeID(data); !got.Equal(id) {
		return fmt.Errorf("%w: expected %s, got %s", ErrContentMismatch, id, got)
	}
	return nil
}

// SplitLocations splits a comma separated list of location URIs, dropping blanks.
func SplitLocations(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FetchVerified fetches id from backend and rejects content whose hash does not match.
func FetchVerified(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	data, err := backend.Fetch(ctx, id, contentType)
	if err != nil {
		return nil, err
	}
	if err := verifyContent(id, data); err != nil {
		return nil, err
	}
	return data, nil
}
