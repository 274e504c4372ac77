package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:  srv.URL,
		CourseID: "7",
		APIToken: "token-123",
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, srv
}

func TestListStudentsFollowsPagination(t *testing.T) {
	t.Parallel()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/7/users", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":3,"name":"Carol"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/courses/7/users?page=2>; rel="next"`, srv.URL))
		fmt.Fprint(w, `[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}]`)
	})
	c, s := newTestClient(t, mux)
	srv = s

	students, err := c.ListStudents(context.Background(), "101")
	if err != nil {
		t.Fatalf("list students failed: %v", err)
	}
	if len(students) != 3 {
		t.Fatalf("expected 3 students across pages, got %d", len(students))
	}
	if students[2].ID != "3" || students[2].Name != "Carol" {
		t.Fatalf("unexpected last student: %+v", students[2])
	}
}

func TestGetAssignmentRejectsNonUpload(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/7/assignments/101", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":101,"name":"Quiz","points_possible":10,"published":true,"submission_types":["online_quiz"]}`)
	})
	c, _ := newTestClient(t, mux)

	if _, err := c.GetAssignment(context.Background(), "101"); err == nil {
		t.Fatal("expected error for non online_upload assignment")
	}
}

func TestListSubmissionFilesDownloadsMatchingAttachments(t *testing.T) {
	t.Parallel()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/files/adder.v", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "module adder; endmodule\n")
	})
	mux.HandleFunc("/courses/7/assignments/101/submissions/42", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"user_id":        42,
			"workflow_state": "submitted",
			"attachments": []map[string]string{
				{"url": srv.URL + "/files/adder.v", "display_name": "adder.v"},
				{"url": srv.URL + "/files/notes.pdf", "display_name": "notes.pdf"},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	c, s := newTestClient(t, mux)
	srv = s

	sub, err := c.ListSubmissionFiles(context.Background(), "101", "42")
	if err != nil {
		t.Fatalf("list submission files failed: %v", err)
	}
	if sub == nil {
		t.Fatal("expected a submission")
	}
	if len(sub.Files) != 1 {
		t.Fatalf("expected only the .v attachment, got %d files", len(sub.Files))
	}
	if sub.Files[0].Name != "adder.v" {
		t.Fatalf("unexpected file name: %s", sub.Files[0].Name)
	}
	if string(sub.Files[0].Content) != "module adder; endmodule\n" {
		t.Fatalf("content not byte-identical: %q", sub.Files[0].Content)
	}
	if sub.Scored {
		t.Fatal("submission without score must not be flagged Scored")
	}
}

func TestListSubmissionFilesUnsubmittedIsNil(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/7/assignments/101/submissions/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user_id":42,"workflow_state":"unsubmitted"}`)
	})
	c, _ := newTestClient(t, mux)

	sub, err := c.ListSubmissionFiles(context.Background(), "101", "42")
	if err != nil {
		t.Fatal(err)
	}
	if sub != nil {
		t.Fatalf("expected nil submission for unsubmitted state, got %+v", sub)
	}
}

// submissionHandler serves a fixed submission payload for student 42.
func submissionHandler(body string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/7/assignments/101/submissions/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})
	return mux
}

func TestListSubmissionFilesResubmissionIsGradable(t *testing.T) {
	t.Parallel()
	// A resubmission keeps the stale score but flips workflow_state back to
	// submitted; it must be regraded, not treated as already scored.
	c, _ := newTestClient(t, submissionHandler(`{"user_id":42,"workflow_state":"submitted","score":80}`))

	sub, err := c.ListSubmissionFiles(context.Background(), "101", "42")
	if err != nil {
		t.Fatal(err)
	}
	if sub == nil {
		t.Fatal("expected a gradable submission")
	}
	if sub.Scored {
		t.Fatal("resubmitted work must not be flagged Scored")
	}
}

func TestListSubmissionFilesGradedWithScoreIsScored(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, submissionHandler(`{"user_id":42,"workflow_state":"graded","score":80}`))

	sub, err := c.ListSubmissionFiles(context.Background(), "101", "42")
	if err != nil {
		t.Fatal(err)
	}
	if sub == nil {
		t.Fatal("expected a submission")
	}
	if !sub.Scored {
		t.Fatal("graded work with a score must be flagged Scored")
	}
}

func TestListSubmissionFilesGradedWithoutScoreIsGradable(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, submissionHandler(`{"user_id":42,"workflow_state":"graded","score":null}`))

	sub, err := c.ListSubmissionFiles(context.Background(), "101", "42")
	if err != nil {
		t.Fatal(err)
	}
	if sub == nil {
		t.Fatal("graded-but-unscored work must be returned")
	}
	if sub.Scored {
		t.Fatal("graded work without a score must not be flagged Scored")
	}
}

func TestListSubmissionFilesOtherWorkflowStatesAreNil(t *testing.T) {
	t.Parallel()
	for _, state := range []string{"pending_review", ""} {
		c, _ := newTestClient(t, submissionHandler(
			fmt.Sprintf(`{"user_id":42,"workflow_state":%q}`, state)))

		sub, err := c.ListSubmissionFiles(context.Background(), "101", "42")
		if err != nil {
			t.Fatal(err)
		}
		if sub != nil {
			t.Fatalf("workflow state %q must be skipped, got %+v", state, sub)
		}
	}
}

func TestPostGradeSendsPostedGrade(t *testing.T) {
	t.Parallel()
	var gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/7/assignments/101/submissions/42", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	})
	c, _ := newTestClient(t, mux)

	if err := c.PostGrade(context.Background(), "101", "42", 75); err != nil {
		t.Fatalf("post grade failed: %v", err)
	}
	if !strings.Contains(gotBody, `"posted_grade":75.00`) {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestPostGradeSurfacesServerError(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/7/assignments/101/submissions/42", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	c, _ := newTestClient(t, mux)

	if err := c.PostGrade(context.Background(), "101", "42", 75); err == nil {
		t.Fatal("expected error on 502")
	}
}
