package dto

// TriggerRunRequest 触发运行请求
type TriggerRunRequest struct {
	ForceClean bool `json:"force_clean"`
}

// ListQueryRequest 通用列表查询请求
type ListQueryRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// PlanQueryRequest 计划查询请求
type PlanQueryRequest struct {
	ForceClean bool `form:"force_clean"`
}

// GetDefaultLimit 获取默认limit
func (r *ListQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
