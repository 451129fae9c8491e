// Package protocol defines the WebSocket message protocol between clients and the backend.
package protocol

import "encoding/json"

// Actions from client to backend
const (
	ActionPrompt     = "prompt"
	ActionUploadFile = "upload_file"
	ActionListFiles  = "list_files"
	ActionReadFile   = "read_file"
	ActionApplyDiff  = "apply_diff"
)

// Action tags from backend to client
const (
	ActionInitialState   = "initial_state"
	ActionFileCreated    = "file_created"
	ActionDiffGenerated  = "diff_generated"
	ActionFileUploaded   = "file_uploaded"
	ActionFileList       = "file_list"
	ActionFileContent    = "file_content"
	ActionDiffApplied    = "diff_applied"
	ActionEditError      = "edit_error"
	ActionApplyDiffError = "apply_diff_error"
	ActionBusyError      = "busy_error"
	ActionError          = "error"
)

// Statuses attached to every outbound message.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is an inbound client message. All actions share one envelope; which
// fields are relevant depends on Action.
type Request struct {
	Action     string      `json:"action"`
	Prompt     string      `json:"prompt,omitempty"`
	Context    ContextList `json:"context,omitempty"`
	ActiveFile string      `json:"activeFile,omitempty"`
	Filename   string      `json:"filename,omitempty"`
	Content    string      `json:"content,omitempty"`
	Diff       string      `json:"diff,omitempty"`
}

// ContextList normalizes the duck-typed "context" field: clients may send a
// single string or an array of strings; either form decodes to an ordered
// slice before it reaches the core.
type ContextList []string

// UnmarshalJSON accepts both a JSON string and a JSON array of strings.
func (c *ContextList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*c = nil
		} else {
			*c = ContextList{single}
		}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(ContextList, 0, len(items))
	for _, item := range items {
		if item != "" {
			out = append(out, item)
		}
	}
	*c = out
	return nil
}

// BaseResponse contains the fields every outbound message carries: a Status
// of "success" or "error" and the Action tag identifying what produced it.
type BaseResponse struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

// InitialStateResponse is pushed immediately after connect.
type InitialStateResponse struct {
	BaseResponse
	Files      []string `json:"files"`
	ActiveFile *string  `json:"activeFile"`
}

// FileCreatedResponse reports a freshly generated workspace file.
type FileCreatedResponse struct {
	BaseResponse
	Filename string   `json:"filename"`
	Content  string   `json:"content"`
	Files    []string `json:"files"`
}

// DiffGeneratedResponse reports a generated diff for an existing file.
type DiffGeneratedResponse struct {
	BaseResponse
	Filename string `json:"filename"`
	Diff     string `json:"diff"`
	NewCode  string `json:"new_code"`
	OldCode  string `json:"old_code"`
}

// FileUploadedResponse confirms an upload_file action.
type FileUploadedResponse struct {
	BaseResponse
	Filename string   `json:"filename"`
	Files    []string `json:"files"`
}

// FileListResponse answers a list_files action.
type FileListResponse struct {
	BaseResponse
	Files []string `json:"files"`
}

// FileContentResponse answers a read_file action.
type FileContentResponse struct {
	BaseResponse
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// DiffAppliedResponse confirms an apply_diff action.
type DiffAppliedResponse struct {
	BaseResponse
	Filename string `json:"filename"`
	NewCode  string `json:"new_code"`
}

// ErrorResponse reports a failed action. The Action tag distinguishes the
// failure source (edit_error, apply_diff_error, busy_error, error).
type ErrorResponse struct {
	BaseResponse
	Error string `json:"error"`
}

// NewInitialState builds the status message pushed after connect: an empty
// file list and no active file.
func NewInitialState() InitialStateResponse {
	return InitialStateResponse{
		BaseResponse: BaseResponse{Status: StatusSuccess, Action: ActionInitialState},
		Files:        []string{},
		ActiveFile:   nil,
	}
}

// NewError builds an error response with the given action tag.
func NewError(action, message string) ErrorResponse {
	return ErrorResponse{
		BaseResponse: BaseResponse{Status: StatusError, Action: action},
		Error:        message,
	}
}

func success(action string) BaseResponse {
	return BaseResponse{Status: StatusSuccess, Action: action}
}

// NewFileCreated builds a file_created response.
func NewFileCreated(filename, content string, files []string) FileCreatedResponse {
	return FileCreatedResponse{
		BaseResponse: success(ActionFileCreated),
		Filename:     filename,
		Content:      content,
		Files:        files,
	}
}

// NewDiffGenerated builds a diff_generated response.
func NewDiffGenerated(filename, diff, newCode, oldCode string) DiffGeneratedResponse {
	return DiffGeneratedResponse{
		BaseResponse: success(ActionDiffGenerated),
		Filename:     filename,
		Diff:         diff,
		NewCode:      newCode,
		OldCode:      oldCode,
	}
}

// NewFileUploaded builds a file_uploaded response.
func NewFileUploaded(filename string, files []string) FileUploadedResponse {
	return FileUploadedResponse{
		BaseResponse: success(ActionFileUploaded),
		Filename:     filename,
		Files:        files,
	}
}

// NewFileList builds a file_list response.
func NewFileList(files []string) FileListResponse {
	return FileListResponse{
		BaseResponse: success(ActionFileList),
		Files:        files,
	}
}

// NewFileContent builds a file_content response.
func NewFileContent(filename, content string) FileContentResponse {
	return FileContentResponse{
		BaseResponse: success(ActionFileContent),
		Filename:     filename,
		Content:      content,
	}
}

// NewDiffApplied builds a diff_applied response.
func NewDiffApplied(filename, newCode string) DiffAppliedResponse {
	return DiffAppliedResponse{
		BaseResponse: success(ActionDiffApplied),
		Filename:     filename,
		NewCode:      newCode,
	}
}
