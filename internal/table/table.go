package table

import (
	"fmt"
	"sort"
)

// Row 是一行数据，列名到值的映射。值可以是任意类型，写报表时再转换为字符串。
type Row = map[string]interface{}

// Table 是带有列顺序的行集合。AppDynamics各接口返回的字段不固定，
// 因此列集合是动态的，按首次出现的顺序记录。
type Table struct {
	columns []string
	colSet  map[string]struct{}
	rows    []Row
}

func New() *Table {
	return &Table{
		columns: make([]string, 0),
		colSet:  make(map[string]struct{}),
		rows:    make([]Row, 0),
	}
}

// FromMaps 根据若干行构建表格，列集合取所有行的并集。输出前会用SortColumns重排。
func FromMaps(rows []Row) *Table {
	t := New()
	for _, row := range rows {
		t.Append(row)
	}
	return t
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Empty() bool {
	return t == nil || len(t.rows) == 0
}

func (t *Table) Columns() []string {
	result := make([]string, len(t.columns))
	copy(result, t.columns)
	return result
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.colSet[name]
	return ok
}

func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// Value 读取第i行的某列。列不存在或者该行没有此值时返回nil。
func (t *Table) Value(i int, column string) interface{} {
	if i < 0 || i >= len(t.rows) {
		return nil
	}
	return t.rows[i][column]
}

// Set 设置第i行某列的值，新列名会注册到列集合。
func (t *Table) Set(i int, column string, value interface{}) {
	if i < 0 || i >= len(t.rows) {
		return
	}
	t.addColumnName(column)
	t.rows[i][column] = value
}

func (t *Table) addColumnName(name string) {
	if _, ok := t.colSet[name]; !ok {
		t.colSet[name] = struct{}{}
		t.columns = append(t.columns, name)
	}
}

// Append 添加一行。行内的新列名会追加到列集合末尾。
func (t *Table) Append(row Row) {
	copied := make(Row, len(row))
	for k, v := range row {
		t.addColumnName(k)
		copied[k] = v
	}
	t.rows = append(t.rows, copied)
}

// SetColumn 给所有行的某一列赋同一个值，常用于补充app_id等上下文列。
func (t *Table) SetColumn(name string, value interface{}) {
	t.addColumnName(name)
	for _, row := range t.rows {
		row[name] = value
	}
}

// Rename 按映射改列名。映射中不存在的列保持原样，目标列名不能与已有列冲突。
func (t *Table) Rename(mapping map[string]string) {
	for i, col := range t.columns {
		newName, ok := mapping[col]
		if !ok {
			continue
		}
		if _, exists := t.colSet[newName]; exists {
			continue
		}
		delete(t.colSet, col)
		t.colSet[newName] = struct{}{}
		t.columns[i] = newName
	}
	for _, row := range t.rows {
		for old, newName := range mapping {
			if v, ok := row[old]; ok {
				if _, exists := row[newName]; !exists {
					row[newName] = v
				}
				delete(row, old)
			}
		}
	}
}

// Concat 把另一个表的所有行追加到本表末尾，列集合取并集。
func (t *Table) Concat(other *Table) {
	if other == nil {
		return
	}
	for _, row := range other.rows {
		t.Append(row)
	}
}

// DropColumns 删除指定列。不存在的列跳过，不算错误，
// 因为不同配置下各接口返回的可选列不一样。
func (t *Table) DropColumns(names ...string) {
	drop := make(map[string]struct{}, len(names))
	for _, name := range names {
		drop[name] = struct{}{}
	}
	kept := t.columns[:0]
	for _, col := range t.columns {
		if _, ok := drop[col]; ok {
			delete(t.colSet, col)
			continue
		}
		kept = append(kept, col)
	}
	t.columns = kept
	for _, row := range t.rows {
		for name := range drop {
			delete(row, name)
		}
	}
}

// SortColumns 按字母序重排列顺序，输出报表前使用。
func (t *Table) SortColumns() {
	sort.Strings(t.columns)
}

// LeftJoin 以本表为左表做左外连接。右表中与左表重名的列加上suffix后缀，
// 连接键取不到匹配时右表各列为nil，左表的行数不变。
// 右表连接键重复时取首个匹配行。
func (t *Table) LeftJoin(right *Table, leftKey, rightKey, suffix string) *Table {
	index := make(map[string]Row)
	if right != nil {
		for _, row := range right.rows {
			key := keyString(row[rightKey])
			if key == "" {
				continue
			}
			if _, ok := index[key]; !ok {
				index[key] = row
			}
		}
	}

	// 右表列的输出名，重名的加后缀
	rightCols := make(map[string]string)
	if right != nil {
		for _, col := range right.columns {
			name := col
			if _, exists := t.colSet[col]; exists {
				name = col + suffix
			}
			rightCols[col] = name
		}
	}

	result := New()
	for _, col := range t.columns {
		result.addColumnName(col)
	}
	if right != nil {
		for _, col := range right.columns {
			result.addColumnName(rightCols[col])
		}
	}

	for _, leftRow := range t.rows {
		merged := make(Row, len(leftRow)+len(rightCols))
		for k, v := range leftRow {
			merged[k] = v
		}
		if match, ok := index[keyString(leftRow[leftKey])]; ok {
			for col, outName := range rightCols {
				merged[outName] = match[col]
			}
		}
		result.rows = append(result.rows, merged)
	}
	return result
}

// keyString 把连接键统一转换为字符串比较，
// 因为JSON解码出来的数字是float64，而XML解码出来的是字符串。
func keyString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case float32:
		return keyString(float64(val))
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
