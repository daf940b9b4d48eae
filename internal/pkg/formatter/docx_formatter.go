package formatter

import (
	"bytes"
	"os"
	"strings"
	"sync"

	"github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
)

const (
	docxContentType   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	docxFileExtension = ".docx"

	// licenseKeyEnv names the UniDoc metered license key. Saving a
	// document fails without an activated license.
	licenseKeyEnv = "UNIDOC_LICENSE_API_KEY"
)

var (
	licenseOnce sync.Once
	licenseErr  error
)

func initLicense() error {
	licenseOnce.Do(func() {
		if key := os.Getenv(licenseKeyEnv); key != "" {
			licenseErr = license.SetMeteredKey(key)
		}
	})
	return licenseErr
}

type DOCXFormatter struct{}

func NewDOCXFormatter() *DOCXFormatter {
	return &DOCXFormatter{}
}

func (df *DOCXFormatter) Format(text string) ([]byte, error) {
	if err := initLicense(); err != nil {
		return nil, err
	}

	doc := document.New()
	defer doc.Close()

	titlePar := doc.AddParagraph()
	titlePar.SetStyle("Heading1")
	titlePar.AddRun().AddText(baseTitle)

	doc.AddParagraph()

	for _, block := range strings.Split(text, "\n\n") {
		par := doc.AddParagraph()
		par.AddRun().AddText(block)
	}

	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (df *DOCXFormatter) ContentType() string {
	return docxContentType
}

func (df *DOCXFormatter) FileExtension() string {
	return docxFileExtension
}
