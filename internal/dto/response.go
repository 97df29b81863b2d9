package dto

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 从 BizError 创建错误响应
func NewErrorResponse(err *BizError) *Response {
	return &Response{
		Code:    err.Code,
		Message: err.Message,
	}
}
