// Package canvas implements the LMS boundary against the Canvas REST API.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"hdlgrade/internal/grader/model"
	"hdlgrade/internal/lms"
	appErr "hdlgrade/pkg/errors"
	"hdlgrade/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	perPage        = 100
)

// Config holds Canvas connection settings.
type Config struct {
	BaseURL   string        `yaml:"baseURL"`
	CourseID  string        `yaml:"courseID"`
	APIToken  string        `yaml:"apiToken"`
	SourceExt string        `yaml:"sourceExt"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Client talks to one Canvas course. It implements lms.Roster and
// lms.Reporter.
type Client struct {
	baseURL   string
	courseID  string
	token     string
	sourceExt string
	http      *http.Client
}

var (
	_ lms.Roster   = (*Client)(nil)
	_ lms.Reporter = (*Client)(nil)
)

// New creates a Canvas client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, appErr.ValidationError("canvas.baseURL", "required")
	}
	if cfg.CourseID == "" {
		return nil, appErr.ValidationError("canvas.courseID", "required")
	}
	if cfg.APIToken == "" {
		return nil, appErr.ValidationError("canvas.apiToken", "required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	ext := cfg.SourceExt
	if ext == "" {
		ext = ".v"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		courseID:  cfg.CourseID,
		token:     cfg.APIToken,
		sourceExt: ext,
		http:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type canvasAssignment struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	PointsPossible  float64  `json:"points_possible"`
	Published       bool     `json:"published"`
	SubmissionTypes []string `json:"submission_types"`
}

type canvasUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type canvasAttachment struct {
	URL         string `json:"url"`
	DisplayName string `json:"display_name"`
}

type canvasSubmission struct {
	UserID        int64              `json:"user_id"`
	WorkflowState string             `json:"workflow_state"`
	Score         *float64           `json:"score"`
	Attachments   []canvasAttachment `json:"attachments"`
}

// GetAssignment fetches assignment metadata. Unpublished assignments or ones
// not collected as online uploads are reported as not found, matching the
// grader's contract of only grading uploadable published assignments.
func (c *Client) GetAssignment(ctx context.Context, assignmentID string) (model.Assignment, error) {
	var a canvasAssignment
	path := fmt.Sprintf("/courses/%s/assignments/%s", c.courseID, assignmentID)
	if err := c.getJSON(ctx, c.baseURL+path, &a); err != nil {
		return model.Assignment{}, err
	}
	if !a.Published || !hasSubmissionType(a.SubmissionTypes, "online_upload") {
		return model.Assignment{}, appErr.Newf(appErr.NotFound,
			"assignment %s is not a published online_upload assignment", assignmentID)
	}
	points := a.PointsPossible
	if points <= 0 {
		points = 100
	}
	return model.Assignment{
		ID:             strconv.FormatInt(a.ID, 10),
		Name:           a.Name,
		PointsPossible: points,
	}, nil
}

// ListStudents returns all course users, following Link-header pagination.
func (c *Client) ListStudents(ctx context.Context, _ string) ([]lms.Student, error) {
	endpoint := fmt.Sprintf("%s/courses/%s/users?per_page=%d", c.baseURL, c.courseID, perPage)

	var students []lms.Student
	for endpoint != "" {
		var page []canvasUser
		next, err := c.getJSONPaged(ctx, endpoint, &page)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.RosterUnavailable)
		}
		for _, u := range page {
			students = append(students, lms.Student{
				ID:   strconv.FormatInt(u.ID, 10),
				Name: u.Name,
			})
		}
		endpoint = next
	}
	return students, nil
}

// ListSubmissionFiles fetches the student's submission and downloads every
// attachment matching the source extension, preserving content byte for byte.
func (c *Client) ListSubmissionFiles(ctx context.Context, assignmentID, studentID string) (*model.Submission, error) {
	var sub canvasSubmission
	reqPath := fmt.Sprintf("/courses/%s/assignments/%s/submissions/%s", c.courseID, assignmentID, studentID)
	if err := c.getJSON(ctx, c.baseURL+reqPath, &sub); err != nil {
		if appErr.Is(err, appErr.NotFound) {
			return nil, nil
		}
		return nil, appErr.Wrap(err, appErr.SubmissionFetchError)
	}
	// Only submitted work and unscored graded work is gradable. A submitted
	// state with a stale score is a resubmission and gets regraded; anything
	// else (unsubmitted, pending_review, ...) is left alone.
	switch sub.WorkflowState {
	case "submitted", "graded":
	default:
		return nil, nil
	}

	out := &model.Submission{
		AssignmentID:  assignmentID,
		StudentID:     studentID,
		WorkflowState: sub.WorkflowState,
		Scored:        sub.WorkflowState == "graded" && sub.Score != nil,
	}
	for _, att := range sub.Attachments {
		if att.URL == "" {
			continue
		}
		if !strings.EqualFold(path.Ext(att.DisplayName), c.sourceExt) {
			continue
		}
		content, err := c.download(ctx, att.URL)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.SubmissionFetchError,
				"download attachment %s failed", att.DisplayName)
		}
		out.Files = append(out.Files, model.SubmissionFile{
			Name:    att.DisplayName,
			Content: content,
		})
	}
	return out, nil
}

// PostGrade writes the score back as the posted grade.
func (c *Client) PostGrade(ctx context.Context, assignmentID, studentID string, score float64) error {
	path := fmt.Sprintf("/courses/%s/assignments/%s/submissions/%s", c.courseID, assignmentID, studentID)
	body := fmt.Sprintf(`{"submission":{"posted_grade":%s}}`,
		strconv.FormatFloat(score, 'f', 2, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return appErr.Wrap(err, appErr.GradePostFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// PostComment attaches the report text as a submission comment.
func (c *Client) PostComment(ctx context.Context, assignmentID, studentID, comment string) error {
	path := fmt.Sprintf("/courses/%s/assignments/%s/submissions/%s/comments", c.courseID, assignmentID, studentID)
	form := url.Values{}
	form.Set("comment[text_comment]", comment)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return appErr.Wrap(err, appErr.GradePostFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, nil)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return appErr.Wrap(err, appErr.UpstreamServiceError)
	}
	return c.do(req, out)
}

// getJSONPaged is getJSON plus Link-header pagination; it returns the next
// page URL or "" on the last page.
func (c *Client) getJSONPaged(ctx context.Context, endpoint string, out interface{}) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", appErr.Wrap(err, appErr.UpstreamServiceError)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", appErr.Wrap(err, appErr.UpstreamServiceError)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", appErr.Wrapf(err, appErr.UpstreamServiceError, "decode response failed")
	}
	return nextLink(resp.Header.Get("Link")), nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return appErr.Wrapf(err, appErr.UpstreamServiceError, "%s %s failed", req.Method, req.URL.Path)
	}
	defer func() { _ = resp.Body.Close() }()
	logger.Debug(req.Context(), "canvas request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErr.Wrapf(err, appErr.UpstreamServiceError, "decode response failed")
	}
	return nil
}

// download fetches an attachment. Canvas attachment URLs are pre-signed, so
// no Authorization header is sent.
func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	code := appErr.UpstreamServiceError
	if resp.StatusCode == http.StatusNotFound {
		code = appErr.NotFound
	}
	return appErr.Newf(code, "canvas returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// nextLink extracts the rel="next" URL from a Canvas Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if !strings.Contains(section[1], `rel="next"`) {
			continue
		}
		u := strings.TrimSpace(section[0])
		return strings.Trim(u, "<>")
	}
	return ""
}

func hasSubmissionType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
