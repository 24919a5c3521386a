package risk

// Entry 汇总输入：一条风险项的 before 矩阵与完成状态
type Entry struct {
	Frequency int
	Severity  int
	Completed bool
}

// Summary 按等级统计
type Summary struct {
	Total     int           `json:"total"`
	ByGrade   map[Grade]int `json:"byGrade"`
	Completed int           `json:"completed"`
}

// Aggregate 统计各等级数量与已完成数量，与输入顺序无关。
// 任一条目评分失败时返回错误，保证 Total == len(entries)。
func Aggregate(entries []Entry) (Summary, error) {
	s := Summary{ByGrade: make(map[Grade]int, len(Grades))}
	for _, g := range Grades {
		s.ByGrade[g] = 0
	}
	for _, e := range entries {
		r, err := Score(e.Frequency, e.Severity)
		if err != nil {
			return Summary{}, err
		}
		s.ByGrade[r.Grade]++
		s.Total++
		if e.Completed {
			s.Completed++
		}
	}
	return s, nil
}
