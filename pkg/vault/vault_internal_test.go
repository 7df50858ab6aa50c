package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizeNameStripsCryptSuffixAndDerivesMimetype(t *testing.T) {
	filename, mimetype := finalizeName("/tmp/staging/report.pdf.crypt")
	require.Equal(t, "report.pdf", filename)
	require.Equal(t, "application/pdf", mimetype)
}

func TestFinalizeNameDefaultsMimetypeForUnknownExtension(t *testing.T) {
	filename, mimetype := finalizeName("/tmp/staging/blob.xyz123")
	require.Equal(t, "blob.xyz123", filename)
	require.Equal(t, "application/octet-stream", mimetype)
}

func TestFinalizeNameWithoutCryptSuffixIsUnchanged(t *testing.T) {
	filename, _ := finalizeName("archive.tar.gz")
	require.Equal(t, "archive.tar.gz", filename)
}
