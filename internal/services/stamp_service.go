package services

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	pdfparse "github.com/digitorus/pdf"
	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// DisplayMetadata carries the stamp's human-readable fields. None of them are
// trust-bearing; the proof lives in the embedded signature.
type DisplayMetadata struct {
	SignerName    string
	SignerLicense string
	Reason        string
	Location      string
}

type StampService struct {
	logger        *zap.Logger
	verifyBaseURL string
}

func NewStampService(logger *zap.Logger, verifyBaseURL string) *StampService {
	return &StampService{
		logger:        logger.With(zap.String("service", "stamp_service")),
		verifyBaseURL: strings.TrimRight(verifyBaseURL, "/"),
	}
}

// QRPayload is the machine-readable stamp content. It is a pointer, not a
// proof: it carries the identifier only, never key material.
func QRPayload(identifier string) string {
	return "DOCUMENT:" + identifier
}

// VerificationURL builds the public re-verification link printed on the stamp.
func (ss *StampService) VerificationURL(identifier string) string {
	return ss.verifyBaseURL + "/verificar/" + identifier
}

// PageCount parses the document and returns its page count, or
// ErrMalformedDocument when the bytes are not a PDF.
func PageCount(docBytes []byte) (n int, err error) {
	// The parser panics on some malformed inputs rather than returning an
	// error, so treat a panic the same as a parse failure.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, ErrMalformedDocument
		}
	}()
	rdr, perr := pdfparse.NewReader(bytes.NewReader(docBytes), int64(len(docBytes)))
	if perr != nil {
		return 0, ErrMalformedDocument
	}
	return rdr.NumPage(), nil
}

// Render appends one verification-stamp page to the document: a QR code with
// the document pointer plus the printed signer and certificate facts. The
// original pages are carried over untouched, so page count grows by exactly
// one. The timestamp is a parameter, not a clock read, and the output's
// creation date is pinned to it: identical inputs produce identical bytes.
func (ss *StampService) Render(docBytes []byte, identifier string, meta DisplayMetadata, facts *CertificateFacts, now time.Time) ([]byte, error) {
	pages, err := PageCount(docBytes)
	if err != nil {
		return nil, err
	}

	qrPNG, err := qrcode.Encode(QRPayload(identifier), qrcode.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("QR encoding failed: %w", err)
	}

	// The page importer reads from a file path.
	tmp, err := os.CreateTemp("", "stamp-src-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("temp file for stamping: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(docBytes); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("temp file for stamping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("temp file for stamping: %w", err)
	}

	out, err := ss.compose(tmp.Name(), pages, qrPNG, identifier, meta, facts, now)
	if err != nil {
		return nil, err
	}

	ss.logger.Info("Verification stamp rendered",
		zap.String("document_id", identifier),
		zap.Int("pages_before", pages),
		zap.Int("pages_after", pages+1),
	)
	return out, nil
}

func (ss *StampService) compose(srcPath string, pages int, qrPNG []byte, identifier string, meta DisplayMetadata, facts *CertificateFacts, now time.Time) (outBytes []byte, err error) {
	// gofpdi panics on structures it cannot import.
	defer func() {
		if r := recover(); r != nil {
			outBytes, err = nil, ErrMalformedDocument
		}
	}()

	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetCreationDate(now.UTC())
	tr := doc.UnicodeTranslatorFromDescriptor("")

	imp := gofpdi.NewImporter()
	for i := 1; i <= pages; i++ {
		tpl := imp.ImportPage(doc, srcPath, i, "/MediaBox")
		sizes := imp.GetPageSizes()
		w := sizes[i]["/MediaBox"]["w"]
		h := sizes[i]["/MediaBox"]["h"]
		orientation := "P"
		if w > h {
			orientation = "L"
		}
		doc.AddPageFormat(orientation, gofpdf.SizeType{Wd: w, Ht: h})
		imp.UseImportedTemplate(doc, tpl, 0, 0, w, h)
	}

	const margin = 48.0
	doc.AddPage()
	_, pageH := doc.GetPageSize()

	doc.SetFont("Helvetica", "B", 14)
	doc.Text(margin, margin+14, tr("DOCUMENTO ASSINADO DIGITALMENTE"))
	doc.SetLineWidth(1.5)
	doc.Line(margin, margin+24, 595.28-margin, margin+24)

	doc.SetFont("Helvetica", "", 11)
	y := margin + 52
	line := func(s string) {
		doc.Text(margin, y, tr(s))
		y += 18
	}

	line("Documento: " + identifier)
	if meta.SignerName != "" || meta.SignerLicense != "" {
		line(fmt.Sprintf("Assinado por: %s  CRM: %s", meta.SignerName, meta.SignerLicense))
	}
	line("Assinado em: " + now.UTC().Format("2006-01-02 15:04:05 UTC"))
	if meta.Location != "" {
		line("Local: " + meta.Location)
	}
	if meta.Reason != "" {
		line("Motivo: " + meta.Reason)
	}
	if facts != nil {
		y += 8
		line("Certificado: " + facts.Subject)
		line("Emissor: " + facts.Issuer)
		line("Serial: " + facts.SerialNumber)
		line(fmt.Sprintf("Validade: %s a %s",
			facts.NotBefore.UTC().Format("2006-01-02"),
			facts.NotAfter.UTC().Format("2006-01-02")))
	}
	y += 8
	line("Verifique em: " + ss.VerificationURL(identifier))

	const qrSize = 140.0
	doc.RegisterImageOptionsReader("verification-qr",
		gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPNG))
	doc.ImageOptions("verification-qr", margin, pageH-margin-qrSize, qrSize, qrSize,
		false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("stamp page output: %w", err)
	}
	return buf.Bytes(), nil
}
