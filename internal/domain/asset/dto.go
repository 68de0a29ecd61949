package asset

type UpdateRequest struct {
	OriginalName    *string     `json:"original_name" binding:"omitempty,min=1,max=255"`
	FocalPoint      *FocalPoint `json:"focal_point"`
	ClearFocalPoint bool        `json:"clear_focal_point"`
}

type DeleteManyRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=100,dive,required"`
}

type DeleteFailure struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DeleteManyResponse struct {
	Deleted []Fields        `json:"deleted"`
	Failed  []DeleteFailure `json:"failed,omitempty"`

	// FilesLeft lists deleted assets whose stored files could not be removed.
	FilesLeft []string `json:"files_left,omitempty"`
}
