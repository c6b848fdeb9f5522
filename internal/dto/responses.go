package dto

// ErrorResponse описывает стандартный ответ с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse описывает ответ без полезной нагрузки сущности.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse представляет страницу списка.
type ListResponse struct {
	Items  interface{} `json:"items"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

// UploadResponse содержит результат загрузки доказательства.
type UploadResponse struct {
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
}
