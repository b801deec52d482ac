package partition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileArchiver writes the gzipped CSV and its sidecar checksum under a root
// directory (ARTIFACT_STORE_ROOT). The object-storage collaborator is
// treated as opaque; this default implementation lets the control plane run
// end-to-end without a cloud storage account, and the Archiver interface
// lets a deployment swap in an S3/GCS-backed implementation without
// touching the partition manager.
type FileArchiver struct {
	root string
}

// NewFileArchiver constructs a FileArchiver rooted at dir.
func NewFileArchiver(dir string) *FileArchiver {
	return &FileArchiver{root: dir}
}

func (a *FileArchiver) Store(ctx context.Context, partitionName string, gzippedCSV []byte, sha256Hex string) (string, error) {
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return "", err
	}

	csvPath := filepath.Join(a.root, partitionName+".csv.gz")
	if err := os.WriteFile(csvPath, gzippedCSV, 0o644); err != nil {
		return "", err
	}

	sumPath := csvPath + ".sha256"
	if err := os.WriteFile(sumPath, []byte(sha256Hex+"\n"), 0o644); err != nil {
		return "", err
	}

	return fmt.Sprintf("file://%s", csvPath), nil
}
