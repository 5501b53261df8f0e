package global

import "encoding/json"

// Resp REST 接口的统一响应信封：{success, message, data}
type Resp struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Ok wraps data in a success envelope. A marshal failure turns into a failed one.
func Ok(data any) *Resp {
	if data == nil {
		return &Resp{Success: true}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Fail(err.Error())
	}
	return &Resp{Success: true, Data: b}
}

func Fail(message string) *Resp {
	return &Resp{Success: false, Message: message}
}

// Decode 把 data 解码到 out；data 缺省时 out 保持不变
func (r *Resp) Decode(out any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	return json.Unmarshal(r.Data, out)
}
