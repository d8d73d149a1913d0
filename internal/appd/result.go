package appd

import (
	"encoding/json"
)

// Status 是所有API响应的三态分类结果。所有底层函数都只返回状态标签，
// 不会向上抛出异常，错误在提取器边界内消化。
type Status string

const (
	StatusValid Status = "valid"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Response 是经过认证传输层的原始响应，Body为响应体，Status为传输层判定结果。
type Response struct {
	Body   []byte
	Status Status
}

// Classify 把各种形式的原始响应统一转换为(数据, 状态)。
// 输入可以是nil、已解码的对象、原始字节，或者带内层状态的Response。
// 任何输入都会得到三态之一，本函数不会panic。
func Classify(raw interface{}) (interface{}, Status) {
	if raw == nil {
		return nil, StatusEmpty
	}

	var data interface{}
	switch v := raw.(type) {
	case Response:
		// 内层状态不是valid时原样传递，不再尝试解码
		if v.Status != StatusValid {
			return nil, v.Status
		}
		if len(v.Body) == 0 {
			return nil, StatusEmpty
		}
		if err := json.Unmarshal(v.Body, &data); err != nil {
			return nil, StatusError
		}
	case *Response:
		if v == nil {
			return nil, StatusEmpty
		}
		return Classify(*v)
	case []byte:
		if len(v) == 0 {
			return nil, StatusEmpty
		}
		if err := json.Unmarshal(v, &data); err != nil {
			return nil, StatusError
		}
	case string:
		if v == "" {
			return nil, StatusEmpty
		}
		if err := json.Unmarshal([]byte(v), &data); err != nil {
			return nil, StatusError
		}
	case map[string]interface{}:
		data = v
	case []interface{}:
		data = v
	default:
		return nil, StatusError
	}

	if isEmptyValue(data) {
		return nil, StatusEmpty
	}
	return data, StatusValid
}

func isEmptyValue(data interface{}) bool {
	switch v := data.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}
