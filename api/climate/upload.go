package climate

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ClimFinLedger/internal/engine"

	"github.com/extrame/xls"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// UploadResult summarizes one source-file ingestion.
type UploadResult struct {
	FileName     string            `json:"file_name"`
	Source       string            `json:"source"`
	BatchID      uuid.UUID         `json:"batch_id"`
	TotalRows    int               `json:"total_rows"`
	ParsedRows   int               `json:"parsed_rows"`
	NonQualified []NonQualifiedRow `json:"non_qualified,omitempty"`
	Errors       []string          `json:"errors,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// NonQualifiedRow is an input row that failed typed coercion, carried in the
// result instead of silently dropped.
type NonQualifiedRow struct {
	RowNumber int      `json:"row_number"`
	Issues    []string `json:"issues"`
}

func normalizeCell(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "<na>", "<nan>", "null", "n/a", "..":
		return ""
	}
	return s
}

func cleanAmount(s string) string {
	s = normalizeCell(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	return s
}

// parseAmount coerces a monetary cell. Empty cells become the missing
// sentinel; garbage is an error so the row can be reported non-qualified.
func parseAmount(s string) (float64, error) {
	s = cleanAmount(s)
	if s == "" {
		return engine.NA(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return engine.NA(), fmt.Errorf("bad amount %q", s)
	}
	return v, nil
}

func parseYear(s string) (int16, error) {
	s = normalizeCell(s)
	if s == "" {
		return 0, nil
	}
	// Some sources export years as "2020.0".
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1950 || y > 2100 {
		return 0, fmt.Errorf("bad year %q", s)
	}
	return int16(y), nil
}

func parseMarker(s string) (engine.MarkerLevel, error) {
	s = normalizeCell(s)
	if s == "" {
		return engine.MarkerMissing, nil
	}
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return engine.MarkerMissing, fmt.Errorf("bad marker %q", s)
	}
	switch engine.MarkerLevel(v) {
	case engine.MarkerNotTargeted, engine.MarkerSignificant, engine.MarkerPrincipal, engine.MarkerComponents:
		return engine.MarkerLevel(v), nil
	}
	return engine.MarkerMissing, fmt.Errorf("marker %d outside vocabulary", v)
}

var dateLayouts = []string{"2006-01-02", "02-01-2006", "2006-01-02T15:04:05", "01/02/2006"}

func parseDate(s string) (time.Time, error) {
	s = normalizeCell(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// Excel serial date fallback.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 && serial < 80000 {
		base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return base.Add(time.Duration(serial) * 24 * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("bad date %q", s)
}

func allEmptyRow(row []string) bool {
	for _, c := range row {
		if normalizeCell(c) != "" {
			return false
		}
	}
	return true
}

// readTabular turns an uploaded file into raw string rows. Format detection
// follows the filename extension: .xlsx through excelize, legacy .xls
// through the OLE reader, anything else is treated as CSV.
func readTabular(fileName string, data []byte) ([][]string, error) {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		xl, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer xl.Close()
		sheets := xl.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx has no sheets")
		}
		rows, err := xl.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("read xlsx rows: %w", err)
		}
		return rows, nil

	case strings.HasSuffix(lower, ".xls"):
		wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("open xls: %w", err)
		}
		sheet := wb.GetSheet(0)
		if sheet == nil {
			return nil, fmt.Errorf("xls has no sheets")
		}
		var rows [][]string
		for i := 0; i <= int(sheet.MaxRow); i++ {
			row := sheet.Row(i)
			if row == nil {
				continue
			}
			var cells []string
			for j := row.FirstCol(); j < row.LastCol(); j++ {
				cells = append(cells, row.Col(j))
			}
			rows = append(rows, cells)
		}
		return rows, nil

	default:
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		return rows, nil
	}
}

// headerIndex maps recognised header aliases to their column position.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		if key != "" {
			idx[key] = i
		}
	}
	return idx
}

func cell(row []string, idx map[string]int, aliases ...string) string {
	for _, a := range aliases {
		if i, ok := idx[a]; ok && i < len(row) {
			return row[i]
		}
	}
	return ""
}

// ParseTransactions coerces an uploaded CRS file into typed transactions.
func ParseTransactions(fileName string, data []byte) ([]engine.Transaction, *UploadResult, error) {
	raw, err := readTabular(fileName, data)
	if err != nil {
		return nil, nil, err
	}
	res := &UploadResult{FileName: fileName, Source: "CRS", BatchID: uuid.New()}
	if len(raw) < 2 {
		return nil, res, fmt.Errorf("%s: no data rows", fileName)
	}
	idx := headerIndex(raw[0])

	var out []engine.Transaction
	for n, row := range raw[1:] {
		if allEmptyRow(row) {
			continue
		}
		res.TotalRows++
		var issues []string

		year, err := parseYear(cell(row, idx, "year"))
		if err != nil {
			issues = append(issues, err.Error())
		}
		t := engine.Transaction{
			Year:                year,
			ProviderCode:        normalizeCell(cell(row, idx, "donor_code", "provider_code", "oecd_provider_code")),
			AgencyCode:          normalizeCell(cell(row, idx, "agency_code", "oecd_agency_code")),
			RecipientCode:       normalizeCell(cell(row, idx, "recipient_code", "oecd_recipient_code")),
			PurposeCode:         normalizeCell(cell(row, idx, "purpose_code")),
			CRSID:               normalizeCell(cell(row, idx, "crs_id", "crs_identification_number")),
			ProjectID:           normalizeCell(cell(row, idx, "project_number", "project_id", "project_identification_number")),
			ProjectTitle:        normalizeCell(cell(row, idx, "project_title")),
			FinanceType:         normalizeCell(cell(row, idx, "finance_type", "finance_t")),
			FlowModality:        normalizeCell(cell(row, idx, "aid_t", "flow_modality", "modality")),
			FinancialInstrument: normalizeCell(cell(row, idx, "financial_instrument")),
		}

		if t.CommitmentDate, err = parseDate(cell(row, idx, "commitment_date")); err != nil {
			issues = append(issues, err.Error())
		}
		amounts := []struct {
			dst     *float64
			aliases []string
		}{
			{&t.USDCommitment, []string{"usd_commitment", "usd_commitment_defl"}},
			{&t.USDDisbursement, []string{"usd_disbursement", "usd_disbursement_defl"}},
			{&t.USDReceived, []string{"usd_received", "usd_received_defl"}},
			{&t.USDGrantEquivalent, []string{"usd_grant_equiv", "usd_grant_equivalent"}},
			{&t.USDNetDisbursement, []string{"usd_net_disbursement"}},
		}
		for _, a := range amounts {
			if *a.dst, err = parseAmount(cell(row, idx, a.aliases...)); err != nil {
				issues = append(issues, err.Error())
			}
		}
		if t.AdaptationMarker, err = parseMarker(cell(row, idx, "climate_adaptation", "climate_adaptation_marker")); err != nil {
			issues = append(issues, err.Error())
		}
		if t.MitigationMarker, err = parseMarker(cell(row, idx, "climate_mitigation", "climate_mitigation_marker")); err != nil {
			issues = append(issues, err.Error())
		}

		// Net disbursement derives from gross minus received when the
		// source does not report it directly.
		if engine.IsNA(t.USDNetDisbursement) && !engine.IsNA(t.USDDisbursement) {
			net := t.USDDisbursement
			if !engine.IsNA(t.USDReceived) {
				net -= t.USDReceived
			}
			t.USDNetDisbursement = net
		}

		if len(issues) > 0 {
			res.NonQualified = append(res.NonQualified, NonQualifiedRow{RowNumber: n + 2, Issues: issues})
			continue
		}
		out = append(out, t)
		res.ParsedRows++
	}
	return out, res, nil
}

// ParseMarkers coerces an uploaded CRDF file into typed marker claims.
func ParseMarkers(fileName string, data []byte) ([]engine.Marker, *UploadResult, error) {
	raw, err := readTabular(fileName, data)
	if err != nil {
		return nil, nil, err
	}
	res := &UploadResult{FileName: fileName, Source: "CRDF", BatchID: uuid.New()}
	if len(raw) < 2 {
		return nil, res, fmt.Errorf("%s: no data rows", fileName)
	}
	idx := headerIndex(raw[0])

	var out []engine.Marker
	for n, row := range raw[1:] {
		if allEmptyRow(row) {
			continue
		}
		res.TotalRows++
		var issues []string

		year, err := parseYear(cell(row, idx, "year"))
		if err != nil {
			issues = append(issues, err.Error())
		}
		m := engine.Marker{
			Year:          year,
			ProviderCode:  normalizeCell(cell(row, idx, "provider_code", "donor_code", "oecd_provider_code")),
			AgencyCode:    normalizeCell(cell(row, idx, "agency_code", "extending_agency", "oecd_agency_code")),
			RecipientCode: normalizeCell(cell(row, idx, "recipient_code", "oecd_recipient_code")),
			PurposeCode:   normalizeCell(cell(row, idx, "purpose_code", "sector_code")),
			ProjectID:     normalizeCell(cell(row, idx, "project_number", "project_id", "project_identification_number")),
			ProjectTitle:  normalizeCell(cell(row, idx, "project_title", "title")),
			FinanceType:   normalizeCell(cell(row, idx, "finance_type", "financial_instrument_type")),
			FlowModality:  normalizeCell(cell(row, idx, "aid_t", "flow_modality", "modality")),
			ChannelCode:   normalizeCell(cell(row, idx, "channel_code", "channel_of_delivery_code")),
			ChannelName:   normalizeCell(cell(row, idx, "channel_name", "channel_of_delivery")),
		}

		amounts := []struct {
			dst     *float64
			aliases []string
		}{
			{&m.AdaptationValue, []string{"climate_adaptation_value", "adaptation_related_development_finance_commitment_current"}},
			{&m.MitigationValue, []string{"climate_mitigation_value", "mitigation_related_development_finance_commitment_current"}},
			{&m.CrossCuttingValue, []string{"overlap_commitment_current", "cross_cutting_value"}},
			{&m.CommitmentClimateShare, []string{"commitment_climate_share", "climate_finance_share"}},
		}
		for _, a := range amounts {
			if *a.dst, err = parseAmount(cell(row, idx, a.aliases...)); err != nil {
				issues = append(issues, err.Error())
			}
		}
		if m.AdaptationMarker, err = parseMarker(cell(row, idx, "climate_adaptation", "adaptation_objective")); err != nil {
			issues = append(issues, err.Error())
		}
		if m.MitigationMarker, err = parseMarker(cell(row, idx, "climate_mitigation", "mitigation_objective")); err != nil {
			issues = append(issues, err.Error())
		}

		if len(issues) > 0 {
			res.NonQualified = append(res.NonQualified, NonQualifiedRow{RowNumber: n + 2, Issues: issues})
			continue
		}
		out = append(out, m)
		res.ParsedRows++
	}
	return out, res, nil
}

// readAll buffers an upload while guarding against runaway request bodies.
func readAll(r io.Reader) ([]byte, error) {
	const maxUpload = 256 << 20
	data, err := io.ReadAll(io.LimitReader(r, maxUpload+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxUpload {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxUpload)
	}
	return data, nil
}
