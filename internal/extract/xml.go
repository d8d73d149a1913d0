package extract

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"github.com/packagewjx/appd-extractor/internal/appd"
	"github.com/packagewjx/appd-extractor/internal/table"
	"io"
	"strings"
)

// ParseXMLRows 把XML响应中名为element的每个元素解析为一行，
// 直接子元素名作为列名，内容文本作为值。业务事务、快照与健康规则违反
// 三类XML格式的接口都用这种方式转换为表格。
func ParseXMLRows(body []byte, element string) ([]table.Row, appd.Status) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, appd.StatusEmpty
	}

	decoder := xml.NewDecoder(bytes.NewReader(body))
	rows := make([]table.Row, 0)

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appd.StatusError
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != element {
			continue
		}

		row, err := decodeRow(decoder, start)
		if err != nil {
			return nil, appd.StatusError
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, appd.StatusEmpty
	}
	return rows, appd.StatusValid
}

// decodeRow 读取一个元素的全部直接子元素。子元素自身还有嵌套时，
// 嵌套内容压平为"名: 值"描述串，因为其结构因控制器版本而异，不适合展开成列。
func decodeRow(decoder *xml.Decoder, start xml.StartElement) (table.Row, error) {
	row := make(table.Row)
	for _, attr := range start.Attr {
		row[attr.Name.Local] = attr.Value
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			value, err := decodeValue(decoder, t)
			if err != nil {
				return nil, err
			}
			if _, exists := row[t.Name.Local]; !exists {
				row[t.Name.Local] = value
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return row, nil
			}
		}
	}
}

func decodeValue(decoder *xml.Decoder, start xml.StartElement) (interface{}, error) {
	var text strings.Builder
	nested := make([]string, 0)

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			inner, err := decodeValue(decoder, t)
			if err != nil {
				return nil, err
			}
			nested = append(nested, fmt.Sprintf("%s: %v", t.Name.Local, inner))
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				if len(nested) > 0 {
					return strings.Join(nested, ", "), nil
				}
				return strings.TrimSpace(text.String()), nil
			}
		}
	}
}
