package gormstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/zxspring21/AISEMITEST/internal/domain"
)

func (r *Repository) Overview(ctx context.Context) (domain.Overview, error) {
	var out domain.Overview
	err := r.db.WithContext(ctx).Raw(`
SELECT (SELECT COUNT(*) FROM company)   AS companies,
       (SELECT COUNT(*) FROM product)   AS products,
       (SELECT COUNT(*) FROM lot)       AS lots,
       (SELECT COUNT(*) FROM wafer)     AS wafers,
       (SELECT COUNT(*) FROM die)       AS dies,
       (SELECT COUNT(*) FROM test_item) AS test_items
`).Scan(&out).Error
	return out, err
}

type lotSummaryRow struct {
	LotModel
	Company    string
	Product    string
	Stage      string
	Program    string
	Revision   string
	WaferCount int64
	DieCount   int64
	PassCount  int64
	FailCount  int64
	TestItems  int64
}

const lotSummarySelect = `
SELECT l.*,
       c.name  AS company,
       p.name  AS product,
       s.name  AS stage,
       tp.name AS program,
       tp.revision AS revision,
       (SELECT COUNT(*) FROM wafer w WHERE w.lot_id = l.id) AS wafer_count,
       (SELECT COUNT(*) FROM die d WHERE d.lot_id = l.id) AS die_count,
       (SELECT COUNT(*) FROM die d WHERE d.lot_id = l.id AND d.passed = ?) AS pass_count,
       (SELECT COUNT(*) FROM die d WHERE d.lot_id = l.id AND d.passed = ?) AS fail_count,
       (SELECT COUNT(*) FROM test_item ti JOIN die d ON d.id = ti.die_id WHERE d.lot_id = l.id) AS test_items
FROM lot l
JOIN test_program tp ON tp.id = l.test_program_id
JOIN stage s ON s.id = tp.stage_id
JOIN product p ON p.id = s.product_id
JOIN company c ON c.id = p.company_id
`

func (r *Repository) ListLots(ctx context.Context, query string, limit int) ([]domain.LotSummary, error) {
	sql := lotSummarySelect
	args := []any{true, false}
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + q + "%"
		sql += "WHERE l.identifier LIKE ? OR p.name LIKE ? OR tp.name LIKE ?\n"
		args = append(args, like, like, like)
	}
	sql += "ORDER BY l.id DESC LIMIT ?"
	args = append(args, limit)

	rows := make([]lotSummaryRow, 0)
	if err := r.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.LotSummary, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (r *Repository) GetLotSummary(ctx context.Context, lotID uint) (domain.LotSummary, error) {
	rows := make([]lotSummaryRow, 0, 1)
	if err := r.db.WithContext(ctx).Raw(lotSummarySelect+"WHERE l.id = ?", true, false, lotID).Scan(&rows).Error; err != nil {
		return domain.LotSummary{}, err
	}
	if len(rows) == 0 {
		return domain.LotSummary{}, errors.Wrapf(domain.ErrNotFound, "lot %d", lotID)
	}
	return rows[0].toDomain(), nil
}

func (row lotSummaryRow) toDomain() domain.LotSummary {
	return domain.LotSummary{
		Lot:        toDomainLot(row.LotModel),
		Company:    row.Company,
		Product:    row.Product,
		Stage:      row.Stage,
		Program:    row.Program,
		Revision:   row.Revision,
		WaferCount: row.WaferCount,
		DieCount:   row.DieCount,
		PassCount:  row.PassCount,
		FailCount:  row.FailCount,
		TestItems:  row.TestItems,
	}
}

// BinSummary counts dies per hard and soft bin. Soft bins that were not
// recorded are left out.
func (r *Repository) BinSummary(ctx context.Context, lotID uint) ([]domain.BinCount, error) {
	rows := make([]domain.BinCount, 0)
	err := r.db.WithContext(ctx).Raw(`
SELECT 'hard' AS kind, b.hard_bin AS bin, MAX(b.hard_bin_name) AS name, COUNT(*) AS count
FROM bin b JOIN die d ON d.id = b.die_id
WHERE d.lot_id = ?
GROUP BY b.hard_bin
UNION ALL
SELECT 'soft' AS kind, b.soft_bin AS bin, MAX(b.soft_bin_name) AS name, COUNT(*) AS count
FROM bin b JOIN die d ON d.id = b.die_id
WHERE d.lot_id = ? AND b.soft_bin IS NOT NULL
GROUP BY b.soft_bin
ORDER BY kind, bin
`, lotID, lotID).Scan(&rows).Error
	return rows, err
}

// FailPareto ranks the tests of a lot by how many results failed.
func (r *Repository) FailPareto(ctx context.Context, lotID uint, limit int) ([]domain.FailCount, error) {
	rows := make([]domain.FailCount, 0)
	err := r.db.WithContext(ctx).Raw(`
SELECT ti.test_num AS test_num,
       ti.test_type AS test_type,
       MAX(ti.test_text) AS test_text,
       COALESCE(MAX(ts.name), '') AS suite,
       SUM(CASE WHEN ti.failed = ? THEN 1 ELSE 0 END) AS fails,
       COUNT(*) AS executed
FROM test_item ti
JOIN die d ON d.id = ti.die_id
LEFT JOIN test_suite ts ON ts.id = ti.test_suite_id
WHERE d.lot_id = ?
GROUP BY ti.test_num, ti.test_type
HAVING SUM(CASE WHEN ti.failed = ? THEN 1 ELSE 0 END) > 0
ORDER BY fails DESC, ti.test_num
LIMIT ?
`, true, lotID, true, limit).Scan(&rows).Error
	return rows, err
}

// SuiteItems groups the tests executed in a lot by test suite. Tests without a
// suite are listed under the empty name.
func (r *Repository) SuiteItems(ctx context.Context, lotID uint) ([]domain.SuiteItems, error) {
	type row struct {
		Suite    string
		TestNum  int64
		TestType string
		TestText string
		Count    int64
	}
	rows := make([]row, 0)
	err := r.db.WithContext(ctx).Raw(`
SELECT COALESCE(ts.name, '') AS suite,
       ti.test_num AS test_num,
       ti.test_type AS test_type,
       MAX(ti.test_text) AS test_text,
       COUNT(*) AS count
FROM test_item ti
JOIN die d ON d.id = ti.die_id
LEFT JOIN test_suite ts ON ts.id = ti.test_suite_id
WHERE d.lot_id = ?
GROUP BY COALESCE(ts.name, ''), ti.test_num, ti.test_type
ORDER BY suite, ti.test_num, ti.test_type
`, lotID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.SuiteItems, 0)
	for _, m := range rows {
		if n := len(result); n == 0 || result[n-1].Suite != m.Suite {
			result = append(result, domain.SuiteItems{Suite: m.Suite})
		}
		last := &result[len(result)-1]
		last.Tests = append(last.Tests, domain.SuiteTest{
			TestNum:  m.TestNum,
			TestType: m.TestType,
			TestText: m.TestText,
			Count:    m.Count,
		})
	}
	return result, nil
}

func (r *Repository) WaferYields(ctx context.Context, lotID uint) ([]domain.WaferYield, error) {
	type row struct {
		WaferModel
		Dies      int64
		PassCount int64
		FailCount int64
	}
	rows := make([]row, 0)
	err := r.db.WithContext(ctx).Raw(`
SELECT w.*,
       COUNT(d.id) AS dies,
       COALESCE(SUM(CASE WHEN d.passed = ? THEN 1 ELSE 0 END), 0) AS pass_count,
       COALESCE(SUM(CASE WHEN d.passed = ? THEN 1 ELSE 0 END), 0) AS fail_count
FROM wafer w
LEFT JOIN die d ON d.wafer_id = w.id
WHERE w.lot_id = ?
GROUP BY w.id
ORDER BY w.identifier, w.head_num
`, true, false, lotID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.WaferYield, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.WaferYield{
			Wafer: toDomainWafer(m.WaferModel),
			Dies:  m.Dies,
			Pass:  m.PassCount,
			Fail:  m.FailCount,
		})
	}
	return result, nil
}

func (r *Repository) ListSiteEquipment(ctx context.Context, lotID uint) ([]domain.SiteEquipment, error) {
	rows := make([]SiteEquipmentModel, 0)
	if err := r.db.WithContext(ctx).Where("lot_id = ?", lotID).Order("head_num, site_group").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.SiteEquipment, 0, len(rows))
	for _, m := range rows {
		result = append(result, toDomainEquipment(m))
	}
	return result, nil
}
