// Package quarantine writes suspicious evidence to a password-protected
// archive instead of leaving it on disk in the clear. It is driver-side
// glue: the IAT and Thread Scanners never call it directly, only the
// code that decides a report is worth keeping around.
package quarantine

import (
	"fmt"
	"os"

	"github.com/yeka/zip"
)

// Bundle writes a single AES-256-encrypted zip at path containing
// report.json (the raw bytes passed in) and one entry per key/value in
// buffers (e.g. "module-<name>.bin", "shc-<addr>.bin"). An existing file
// at path is overwritten.
func Bundle(path, password string, report []byte, buffers map[string][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("quarantine: create %s: %w", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	if err := writeEncryptedEntry(zw, "report.json", password, report); err != nil {
		return err
	}
	for name, buf := range buffers {
		if err := writeEncryptedEntry(zw, name, password, buf); err != nil {
			return err
		}
	}
	return nil
}

func writeEncryptedEntry(zw *zip.Writer, name, password string, data []byte) error {
	w, err := zw.Encrypt(name, password, zip.AES256Encryption)
	if err != nil {
		return fmt.Errorf("quarantine: open entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("quarantine: write entry %s: %w", name, err)
	}
	return nil
}
