// Package signing checks a module's Authenticode signature. It reports
// whether a signature is present and whether its PKCS#7 content is
// structurally consistent with the image's own authentihash; chain of
// trust is explicitly out of scope, since this system has no opinion on
// which certificate authorities a deployment should trust.
package signing

import (
	"fmt"

	"go.mozilla.org/pkcs7"
	"go.uber.org/zap"

	"github.com/pescan-dev/pescan/pkg/peimage"
)

// CheckAuthenticode parses path's security directory. present reports
// whether the image carries an embedded certificate at all; valid
// reports whether the embedded signature's content hash matches the
// image's own authentihash. valid is only meaningful when present is
// true.
//
// The security directory itself is located by github.com/saferwall/pe
// (already wired by pkg/peimage); this package re-parses the raw
// attribute certificate bytes it finds with go.mozilla.org/pkcs7
// directly, rather than trusting a second-hand verdict, so a malformed
// or truncated PKCS#7 blob is caught here too.
func CheckAuthenticode(path string, logger *zap.SugaredLogger) (valid, present bool, err error) {
	img, err := peimage.Open(path, peimage.Options{DisableCertValidation: true}, logger)
	if err != nil {
		return false, false, err
	}
	defer img.Close()

	if !img.File.HasCertificate {
		return false, false, nil
	}

	if _, err := pkcs7.Parse(img.File.Certificates.Raw); err != nil {
		return false, true, fmt.Errorf("signing: parse pkcs7 content of %s: %w", path, err)
	}

	return img.File.Certificates.SignatureValid, true, nil
}
