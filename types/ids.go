package types

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountID 账户标识（shard.realm.num，例如 0.0.1001）
type AccountID string

// TokenID 代币标识；空字符串表示原生币
type TokenID string

// ScheduleID 计划交易实体标识
type ScheduleID string

// TopicID 共识主题标识
type TopicID string

// Native 原生币资产（LineItem.Token / 授权资产的零值）
const Native TokenID = ""

// EntityID 解析后的实体编号
type EntityID struct {
	Shard uint64
	Realm uint64
	Num   uint64
}

// String 返回 shard.realm.num 形式
func (e EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Shard, e.Realm, e.Num)
}

// ParseEntityID 解析 shard.realm.num 形式的实体标识
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return EntityID{}, fmt.Errorf("invalid entity id %q: expected shard.realm.num", s)
	}

	var nums [3]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return EntityID{}, fmt.Errorf("invalid entity id %q: %w", s, err)
		}
		nums[i] = n
	}

	return EntityID{Shard: nums[0], Realm: nums[1], Num: nums[2]}, nil
}

// Validate 校验账户标识格式
func (id AccountID) Validate() error {
	if id == "" {
		return fmt.Errorf("account id is empty")
	}
	_, err := ParseEntityID(string(id))
	return err
}

// Validate 校验代币标识格式（原生币视为合法）
func (id TokenID) Validate() error {
	if id == Native {
		return nil
	}
	_, err := ParseEntityID(string(id))
	return err
}

// IsNative 是否为原生币
func (id TokenID) IsNative() bool {
	return id == Native
}

// Label 返回用于日志与错误信息的资产名
func (id TokenID) Label() string {
	if id == Native {
		return "native"
	}
	return string(id)
}

// Validate 校验计划交易标识格式
func (id ScheduleID) Validate() error {
	if id == "" {
		return fmt.Errorf("schedule id is empty")
	}
	_, err := ParseEntityID(string(id))
	return err
}

// Validate 校验主题标识格式
func (id TopicID) Validate() error {
	if id == "" {
		return fmt.Errorf("topic id is empty")
	}
	_, err := ParseEntityID(string(id))
	return err
}
