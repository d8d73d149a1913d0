package report

import (
	"path/filepath"
	"testing"

	"github.com/packagewjx/appd-extractor/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"
)

func TestWriteWorkbook(t *testing.T) {
	applications := table.FromMaps([]table.Row{
		{"app_id": float64(1), "app_name": "Shop"},
		{"app_id": float64(2), "app_name": "Store"},
	})
	snapshots := table.FromMaps([]table.Row{
		{"requestGUID": "g1", "userExperience": "NORMAL"},
		{"requestGUID": "g2", "userExperience": "VERY_SLOW"},
	})

	path := filepath.Join(t.TempDir(), "report.xlsx")
	err := NewWriter().WriteWorkbook(path, []Sheet{
		{Name: "Applications", Data: applications},
		{Name: "Tiers", Data: table.New()}, // 空表跳过
		{Name: "Snapshots", Data: snapshots},
	})
	if !assert.NoError(t, err) {
		assert.FailNow(t, "WriteWorkbook failed")
	}

	file, err := excelize.OpenFile(path)
	if !assert.NoError(t, err) {
		assert.FailNow(t, "cannot reopen workbook")
	}
	defer func() {
		_ = file.Close()
	}()

	// 空表和默认页都不出现
	assert.ElementsMatch(t, []string{"Applications", "Snapshots"}, file.GetSheetList())

	rows, err := file.GetRows("Applications")
	assert.NoError(t, err)
	if !assert.Len(t, rows, 3) {
		assert.FailNow(t, "unexpected row count")
	}
	// 列按字母序输出，首行是表头
	assert.Equal(t, []string{"app_id", "app_name"}, rows[0])
	assert.Equal(t, "Shop", rows[1][1])
	assert.Equal(t, "Store", rows[2][1])
}

func TestWriteWorkbookAllEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	err := NewWriter().WriteWorkbook(path, []Sheet{
		{Name: "Applications", Data: table.New()},
		{Name: "Tiers", Data: nil},
	})
	assert.Error(t, err)
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, "", cellValue(nil))
	assert.Equal(t, "Shop", cellValue("Shop"))
	assert.Equal(t, float64(1), cellValue(float64(1)))
	assert.Equal(t, true, cellValue(true))
	// 嵌套结构降级为字符串
	assert.Equal(t, "map[a:1]", cellValue(map[string]interface{}{"a": 1}))
}
