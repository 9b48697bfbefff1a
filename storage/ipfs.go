package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// DefaultIPFSRoot is the MFS directory blobs are written under.
const DefaultIPFSRoot = "/insurance-coordinator"

// IPFSBackend stores blobs in the mutable file system of an IPFS node, keyed by
// content id, so reads do not need the IPFS CID.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend connects to the IPFS HTTP API at host:port.
func NewIPFSBackend(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	if root == "" {
		root = DefaultIPFSRoot
	}
	if !strings.HasPrefix(root, "/") {
		return nil, fmt.Errorf("ipfs root must be absolute, got %q", root)
	}

	apiURL := fmt.Sprintf("%s:%s", host, port)
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?root=%s&timeout=%s", apiURL, root, timeout),
	}, nil
}

// Fetch reads the blob for id from MFS.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	p, err := b.mfsPath(id, contentType)
	if err != nil {
		return nil, err
	}

	reader, err := b.shell.FilesRead(ctx, p)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil, interfaces.ErrContentNotFound
		}
		if !b.shell.IsUp() {
			return nil, interfaces.ErrBackendUnavailable
		}
		return nil, fmt.Errorf("failed to read %s from IPFS: %w", p, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", p),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store writes data to MFS under its SHA-256 id and logs the resulting IPFS CID.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	p, err := b.mfsPath(id, contentType)
	if err != nil {
		return id, err
	}

	err = b.shell.FilesWrite(ctx, p, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return id, fmt.Errorf("failed to write %s to IPFS: %w", p, err)
	}

	attrs := []any{slog.String("path", p), slog.String("contentID", id.String())}
	if stat, err := b.shell.FilesStat(ctx, p); err == nil {
		attrs = append(attrs, slog.String("ipfsCID", stat.Hash))
	}
	b.log.Debug("Stored content in IPFS", attrs...)

	return id, nil
}

func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) mfsPath(id interfaces.ContentID, contentType interfaces.ContentType) (string, error) {
	ns, err := namespace(contentType)
	if err != nil {
		return "", err
	}
	return path.Join(b.root, ns, id.String()), nil
}
