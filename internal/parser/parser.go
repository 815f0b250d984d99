package parser

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// Rejection describes why a file failed validation. An upload with any
// rejection is refused as a whole.
type Rejection struct {
	Filename       string   `json:"filename"`
	Error          string   `json:"error"`
	Suggestion     string   `json:"suggestion,omitempty"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

// Parser validates and decodes reconciliation source files. CSV and XLSX
// are supported; anything else is rejected up front.
type Parser struct {
	maxBytes int64
}

func NewParser(maxBytes int64) *Parser {
	return &Parser{maxBytes: maxBytes}
}

// xlsxSignature is the ZIP local-file magic every real XLSX starts with.
var xlsxSignature = []byte{'P', 'K', 0x03, 0x04}

// Validate runs the per-file checks without decoding row data. A nil
// return means the file is parseable and its required columns are
// identifiable.
func (p *Parser) Validate(filename string, data []byte) *Rejection {
	if len(data) == 0 {
		return &Rejection{
			Filename:   filename,
			Error:      "file is empty",
			Suggestion: "re-export the file from the source system and upload again",
		}
	}
	if p.maxBytes > 0 && int64(len(data)) > p.maxBytes {
		return &Rejection{
			Filename:   filename,
			Error:      "file exceeds the upload size limit",
			Suggestion: "split the file by cycle or compress empty columns before uploading",
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
	case ".xlsx":
		if !bytes.HasPrefix(data, xlsxSignature) {
			return &Rejection{
				Filename:   filename,
				Error:      "file does not look like a spreadsheet",
				Suggestion: "the extension says Excel but the content is not; save as .xlsx or .csv and retry",
			}
		}
	case ".xls":
		return &Rejection{
			Filename:   filename,
			Error:      "legacy .xls workbooks are not supported",
			Suggestion: "save the file as .xlsx or .csv and upload again",
		}
	default:
		return &Rejection{
			Filename:   filename,
			Error:      "unsupported file type " + ext,
			Suggestion: "upload .csv or .xlsx files only",
		}
	}

	header, _, err := p.decode(filename, data)
	if err != nil {
		return &Rejection{
			Filename:   filename,
			Error:      "file could not be parsed: " + err.Error(),
			Suggestion: "check the file for corruption or a non-standard delimiter",
		}
	}
	if missing := MissingRequired(MapColumns(header)); len(missing) > 0 {
		return &Rejection{
			Filename:       filename,
			Error:          "required columns could not be identified",
			Suggestion:     "rename the listed columns (or close aliases of them) in the file header",
			MissingColumns: missing,
		}
	}
	return nil
}

// Parse decodes a validated file into normalized records. Source and
// direction come from the upload slot or the filename, whichever the
// caller resolved.
func (p *Parser) Parse(filename string, data []byte, source domain.Source, direction domain.Direction, cycle string) (NormalizeResult, error) {
	header, rows, err := p.decode(filename, data)
	if err != nil {
		return NormalizeResult{}, apperrors.Wrap(err, apperrors.KindProcessing, "parsing %s", filename)
	}
	res := Normalize(header, rows, source, direction, cycle)
	logger.GetLogger().WithFields(map[string]interface{}{
		"file":    filepath.Base(filename),
		"source":  source,
		"records": len(res.Records),
	}).Info("Parsed source file")
	return res, nil
}

func (p *Parser) decode(filename string, data []byte) ([]string, [][]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".xlsx" {
		return decodeXLSX(data)
	}
	return decodeCSV(data)
}

func decodeCSV(data []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.KindProcessing, "reading CSV header")
	}
	// Strip a UTF-8 BOM so the first column maps cleanly.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, apperrors.Wrap(err, apperrors.KindProcessing, "reading CSV row")
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func decodeXLSX(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.KindProcessing, "opening workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, apperrors.Processing("workbook has no sheets")
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.KindProcessing, "reading sheet %s", sheets[0])
	}
	if len(all) == 0 {
		return nil, nil, apperrors.Processing("sheet %s is empty", sheets[0])
	}
	return all[0], all[1:], nil
}
