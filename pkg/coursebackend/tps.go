package coursebackend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/noah-isme/rendus-api/internal/models"
)

// ListTPs returns the TPs of a course. Failures degrade to an empty list.
func (c *Client) ListTPs(ctx context.Context, courseID uint) ([]models.TP, error) {
	var tps []models.TP
	req := request{operation: "list_tps", method: http.MethodGet, path: fmt.Sprintf("/course/%d/TPs", courseID)}
	if err := c.doValidated(ctx, req, tpSchema, &tps); err != nil {
		c.degrade(req.operation, err)
		return []models.TP{}, nil
	}
	if tps == nil {
		tps = []models.TP{}
	}
	return tps, nil
}

// GetTP returns one TP with its statuses.
func (c *Client) GetTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error) {
	var tp models.TP
	req := request{operation: "get_tp", method: http.MethodGet, path: fmt.Sprintf("/course/%d/TPs/%d", courseID, tpNo)}
	if err := c.doValidated(ctx, req, tpSchema, &tp); err != nil {
		return models.TP{}, err
	}
	return tp, nil
}

// CreateTP creates an empty TP with the given number.
func (c *Client) CreateTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error) {
	req, err := jsonRequest("create_tp", http.MethodPost, fmt.Sprintf("/course/%d/TPs/%d", courseID, tpNo), map[string]interface{}{})
	if err != nil {
		return models.TP{}, err
	}
	var tp models.TP
	if err := c.do(ctx, req, &tp); err != nil {
		return models.TP{}, err
	}
	if tp.No == 0 {
		tp.No = tpNo
	}
	return tp, nil
}

// DeleteTP removes a TP.
func (c *Client) DeleteTP(ctx context.Context, courseID uint, tpNo int) error {
	req := request{operation: "delete_tp", method: http.MethodDelete, path: fmt.Sprintf("/course/%d/TPs/%d", courseID, tpNo)}
	return c.do(ctx, req, nil)
}

// UploadSubmission attaches the submission archive of a TP.
func (c *Client) UploadSubmission(ctx context.Context, courseID uint, tpNo int, fileName string, content []byte) (models.TP, error) {
	req, err := multipartRequest("add_rendu", fmt.Sprintf("/course/%d/addRendu/%d", courseID, tpNo), fileName, content)
	if err != nil {
		return models.TP{}, err
	}
	var tp models.TP
	if err := c.do(ctx, req, &tp); err != nil {
		return models.TP{}, err
	}
	return tp, nil
}

// StartProcessing asks the backend to restructure the submission archive of a TP.
func (c *Client) StartProcessing(ctx context.Context, courseID uint, tpNo int) error {
	req, err := jsonRequest("start_process_submission", http.MethodPost, fmt.Sprintf("/course/%d/startProcessSubmission/%d", courseID, tpNo), map[string]interface{}{})
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

// ManageTP reconciles the status records of a TP with the restructured archive.
func (c *Client) ManageTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error) {
	req, err := jsonRequest("manage_tp", http.MethodPost, fmt.Sprintf("/course/%d/manageTP/%d", courseID, tpNo), map[string]interface{}{})
	if err != nil {
		return models.TP{}, err
	}
	var tp models.TP
	if err := c.doValidated(ctx, req, tpSchema, &tp); err != nil {
		return models.TP{}, err
	}
	return tp, nil
}

// RefreshStatuses regenerates the status mapping of a TP.
func (c *Client) RefreshStatuses(ctx context.Context, courseID uint, tpNo int) ([]models.TPStatus, error) {
	req, err := jsonRequest("refresh_tp_status", http.MethodPost, fmt.Sprintf("/course/%d/TPs/%d/TPStatusRefresh", courseID, tpNo), map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var statuses []models.TPStatus
	if err := c.do(ctx, req, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Archive is a streamed restructured archive. Callers must close Body.
type Archive struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// DownloadArchive streams the restructured archive of a TP.
func (c *Client) DownloadArchive(ctx context.Context, courseID uint, tpNo int) (*Archive, error) {
	req := request{operation: "download_restructured_zip", method: http.MethodGet, path: fmt.Sprintf("/course/%d/downloadRestructuredZip/%d", courseID, tpNo)}
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/zip"
	}
	return &Archive{Body: resp.Body, ContentType: contentType, ContentLength: resp.ContentLength}, nil
}

// ListStatuses returns the status records of a TP. Failures degrade to an empty list.
func (c *Client) ListStatuses(ctx context.Context, courseID uint, tpNo int) ([]models.TPStatus, error) {
	var statuses []models.TPStatus
	req := request{operation: "list_tp_status", method: http.MethodGet, path: fmt.Sprintf("/course/%d/TPs/%d/TPStatus", courseID, tpNo)}
	if err := c.do(ctx, req, &statuses); err != nil {
		c.degrade(req.operation, err)
		return []models.TPStatus{}, nil
	}
	if statuses == nil {
		statuses = []models.TPStatus{}
	}
	return statuses, nil
}

// GetStatus returns one status record.
func (c *Client) GetStatus(ctx context.Context, statusID uint) (models.TPStatus, error) {
	var status models.TPStatus
	req := request{operation: "get_tp_status", method: http.MethodGet, path: fmt.Sprintf("/TPStatus/%d", statusID)}
	if err := c.do(ctx, req, &status); err != nil {
		return models.TPStatus{}, err
	}
	return status, nil
}

// UpdateStatus sets the submission state of a status record.
func (c *Client) UpdateStatus(ctx context.Context, statusID uint, state models.SubmissionState) (models.TPStatus, error) {
	req := request{
		operation: "update_tp_status",
		method:    http.MethodPut,
		path:      fmt.Sprintf("/TPStatus/%d", statusID),
		query:     map[string]string{"submissionType": string(state)},
	}
	var status models.TPStatus
	if err := c.do(ctx, req, &status); err != nil {
		return models.TPStatus{}, err
	}
	if status.ID == 0 {
		status = models.TPStatus{ID: statusID, StudentSubmission: models.RawState(state)}
	}
	return status, nil
}

// DeleteStatus removes a status record.
func (c *Client) DeleteStatus(ctx context.Context, statusID uint) error {
	req := request{operation: "delete_tp_status", method: http.MethodDelete, path: "/TPStatus/" + strconv.FormatUint(uint64(statusID), 10)}
	return c.do(ctx, req, nil)
}
