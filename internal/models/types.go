package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList 以 JSON 文本存储的字符串列表，postgres 和 sqlite 都能用
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("StringList: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

const (
	ThemeDark      = "dark"
	ThemeMatrix    = "matrix"
	ThemeCyberpunk = "cyberpunk"
)

// Preferences 用户偏好，整体以 JSON 文本存一列
type Preferences struct {
	EmailNotifications bool   `json:"emailNotifications"`
	Theme              string `json:"theme"`
	ShowEmail          bool   `json:"showEmail"`
}

func DefaultPreferences() Preferences {
	return Preferences{EmailNotifications: true, Theme: ThemeCyberpunk}
}

func ValidTheme(theme string) bool {
	switch theme {
	case ThemeDark, ThemeMatrix, ThemeCyberpunk:
		return true
	}
	return false
}

// Value 零值存 NULL，读出来就是默认偏好
func (p Preferences) Value() (driver.Value, error) {
	if p == (Preferences{}) {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 空值按默认偏好处理，老数据迁移后不用回填
func (p *Preferences) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = DefaultPreferences()
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("Preferences: unsupported type %T", src)
	}
	*p = DefaultPreferences()
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, p)
}
