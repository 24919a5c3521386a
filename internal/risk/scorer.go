// Package risk 风险矩阵评分（频率 × 严重度），纯函数，无状态
package risk

import (
	"fmt"
)

// Grade 风险等级
type Grade string

const (
	GradeLow      Grade = "low"
	GradeMedium   Grade = "medium"
	GradeHigh     Grade = "high"
	GradeCritical Grade = "critical"
)

// Grades 从低到高
var Grades = []Grade{GradeLow, GradeMedium, GradeHigh, GradeCritical}

// Rank 等级序号，用于比较（未知等级为 -1）
func (g Grade) Rank() int {
	for i, k := range Grades {
		if k == g {
			return i
		}
	}
	return -1
}

const (
	MinInput = 1
	MaxInput = 5
)

// RangeError 输入超出 [1,5]
type RangeError struct {
	Field string
	Value int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s=%d out of range [%d,%d]", e.Field, e.Value, MinInput, MaxInput)
}

// Result 评分结果
type Result struct {
	Level int   `json:"level"`
	Grade Grade `json:"grade"`
}

// Score level = frequency * severity，并按阈值分级
func Score(frequency, severity int) (Result, error) {
	if frequency < MinInput || frequency > MaxInput {
		return Result{}, &RangeError{Field: "frequency", Value: frequency}
	}
	if severity < MinInput || severity > MaxInput {
		return Result{}, &RangeError{Field: "severity", Value: severity}
	}
	level := frequency * severity
	return Result{Level: level, Grade: GradeForLevel(level)}, nil
}

// GradeForLevel >=20 critical, 12..19 high, 6..11 medium, <6 low
func GradeForLevel(level int) Grade {
	switch {
	case level >= 20:
		return GradeCritical
	case level >= 12:
		return GradeHigh
	case level >= 6:
		return GradeMedium
	default:
		return GradeLow
	}
}
