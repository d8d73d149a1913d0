package report

import (
	"fmt"
	"log"
	"os"

	"github.com/packagewjx/appd-extractor/internal/table"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// 列宽上限，超长的单元格内容不再撑宽列
const maxColumnWidth = 50

// Sheet 是报表中的一页，Data为空的页直接跳过不写。
type Sheet struct {
	Name string
	Data *table.Table
}

// userExperience取值对应的行背景色，覆盖默认的交替底纹
var userExperienceColors = map[string]string{
	"NORMAL":    "90EE90",
	"ERROR":     "FA3B37",
	"SLOW":      "FFFF80",
	"VERY_SLOW": "FC9C2D",
	"STALL":     "FF69CD",
}

// Writer 把提取结果写成带格式的xlsx工作簿。
type Writer struct {
	logger *log.Logger
}

func NewWriter() *Writer {
	return &Writer{
		logger: log.New(os.Stdout, "report: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
	}
}

// WriteWorkbook 按给定顺序把各表写入一个工作簿。
// 写入失败返回错误，由调用方决定如何报告，已提取的数据不受影响。
func (w *Writer) WriteWorkbook(path string, sheets []Sheet) error {
	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	styles, err := newStyleSet(file)
	if err != nil {
		return errors.Wrap(err, "创建单元格样式失败")
	}

	written := 0
	for _, sheet := range sheets {
		if sheet.Data.Empty() {
			w.logger.Printf("%s为空，跳过", sheet.Name)
			continue
		}
		if _, err := file.NewSheet(sheet.Name); err != nil {
			return errors.Wrap(err, fmt.Sprintf("创建工作表%s失败", sheet.Name))
		}
		if err := w.writeSheet(file, styles, sheet); err != nil {
			return errors.Wrap(err, fmt.Sprintf("写入工作表%s失败", sheet.Name))
		}
		written++
	}

	if written == 0 {
		return fmt.Errorf("没有任何非空数据可写")
	}

	// 删掉excelize自带的默认页
	_ = file.DeleteSheet("Sheet1")

	if err := file.SaveAs(path); err != nil {
		return errors.Wrap(err, fmt.Sprintf("保存%s失败", path))
	}
	w.logger.Printf("报表已写入%s，共%d页", path, written)
	return nil
}

type styleSet struct {
	header              int
	oddRow              int
	evenRow             int
	userExperienceCache map[string]int
	file                *excelize.File
}

func newStyleSet(file *excelize.File) (*styleSet, error) {
	borders := []excelize.Border{
		{Type: "left", Style: 1, Color: "000000"},
		{Type: "right", Style: 1, Color: "000000"},
		{Type: "top", Style: 1, Color: "000000"},
		{Type: "bottom", Style: 1, Color: "000000"},
	}

	header, err := file.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"ADD8E6"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "left"},
		Border:    borders,
	})
	if err != nil {
		return nil, err
	}

	odd, err := file.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"C2C2C2"}, Pattern: 1},
		Border: borders,
	})
	if err != nil {
		return nil, err
	}

	even, err := file.NewStyle(&excelize.Style{Border: borders})
	if err != nil {
		return nil, err
	}

	return &styleSet{
		header:              header,
		oddRow:              odd,
		evenRow:             even,
		userExperienceCache: make(map[string]int),
		file:                file,
	}, nil
}

func (s *styleSet) userExperienceStyle(experience string) (int, bool) {
	color, ok := userExperienceColors[experience]
	if !ok {
		return 0, false
	}
	if style, cached := s.userExperienceCache[experience]; cached {
		return style, true
	}
	style, err := s.file.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Style: 1, Color: "000000"},
			{Type: "right", Style: 1, Color: "000000"},
			{Type: "top", Style: 1, Color: "000000"},
			{Type: "bottom", Style: 1, Color: "000000"},
		},
	})
	if err != nil {
		return 0, false
	}
	s.userExperienceCache[experience] = style
	return style, true
}

func (w *Writer) writeSheet(file *excelize.File, styles *styleSet, sheet Sheet) error {
	data := sheet.Data
	data.SortColumns()
	columns := data.Columns()

	// 表头
	for colIdx, column := range columns {
		cell, err := excelize.CoordinatesToCellName(colIdx+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet.Name, cell, column); err != nil {
			return err
		}
	}
	if len(columns) > 0 {
		first, _ := excelize.CoordinatesToCellName(1, 1)
		last, _ := excelize.CoordinatesToCellName(len(columns), 1)
		if err := file.SetCellStyle(sheet.Name, first, last, styles.header); err != nil {
			return err
		}
	}

	// 数据行，快照页按userExperience着色，其余页交替底纹
	for rowIdx := 0; rowIdx < data.Len(); rowIdx++ {
		row := data.Row(rowIdx)
		for colIdx, column := range columns {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(sheet.Name, cell, cellValue(row[column])); err != nil {
				return err
			}
		}

		style := styles.evenRow
		if rowIdx%2 == 0 {
			style = styles.oddRow
		}
		if sheet.Name == "Snapshots" {
			experience := fmt.Sprintf("%v", row["userExperience"])
			if s, ok := styles.userExperienceStyle(experience); ok {
				style = s
			} else {
				style = styles.evenRow
			}
		}
		first, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		last, _ := excelize.CoordinatesToCellName(len(columns), rowIdx+2)
		if err := file.SetCellStyle(sheet.Name, first, last, style); err != nil {
			return err
		}
	}

	// 按内容自适应列宽，超出上限截断
	for colIdx, column := range columns {
		width := len(column)
		for rowIdx := 0; rowIdx < data.Len(); rowIdx++ {
			length := len(fmt.Sprintf("%v", cellValue(data.Value(rowIdx, column))))
			if length > width {
				width = length
			}
		}
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		name, err := excelize.ColumnNumberToName(colIdx + 1)
		if err != nil {
			return err
		}
		if err := file.SetColWidth(sheet.Name, name, name, float64(width+2)); err != nil {
			return err
		}
	}

	return nil
}

// cellValue 把表格值转换为可写入单元格的形式，nil写成空串。
func cellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64, float32:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
