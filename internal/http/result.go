package httpapi

// Result 统一响应信封
// - code: 成功 2000，失败 -1
// - type: 'success' | 'error'
// - error_kind: 失败时的错误分类（ValidationError / InvalidTransition / ...）
type Result[T any] struct {
	Code      int    `json:"code"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	ErrorKind string `json:"error_kind,omitempty"`
	Result    T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(kind, message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, ErrorKind: kind, Result: nil}
}

// FailWith 失败但附带结构化内容（如字段校验问题）
func FailWith(kind, message string, detail any) Result[any] {
	r := Fail(kind, message)
	r.Result = detail
	return r
}

// Pagination 列表分页信息
type Pagination struct {
	Size  int `json:"size"`
	Page  int `json:"page"`
	Count int `json:"count"`
	Total int `json:"total"`
}

// Page 列表响应
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// paginate page 从 1 开始；size <= 0 时返回全部
func paginate[T any](all []T, page, size int) Page[T] {
	total := len(all)
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		return Page[T]{Items: all, Pagination: Pagination{Size: total, Page: 1, Count: total, Total: total}}
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	items := all[start:end]
	return Page[T]{Items: items, Pagination: Pagination{Size: size, Page: page, Count: len(items), Total: total}}
}
