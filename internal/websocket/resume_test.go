package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResumeKey(t *testing.T) {
	cases := []struct {
		name         string
		key          string
		wantUserID   uint64
		wantResumeID string
		wantFileName string
		wantOK       bool
	}{
		{"simple", "42-7-cv.pdf", 42, "7", "cv.pdf", true},
		{"filename with dashes", "42-7-my-resume-final.pdf", 42, "7", "my-resume-final.pdf", true},
		{"filename with no dashes", "1-2-resume.pdf", 1, "2", "resume.pdf", true},
		{"missing separators", "notakey", 0, "", "", false},
		{"only one separator", "42-cv.pdf", 0, "", "", false},
		{"non-numeric user id", "abc-7-cv.pdf", 0, "", "", false},
		{"non-numeric resume id", "42-seven-cv.pdf", 0, "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			userID, resumeID, fileName, ok := parseResumeKey(tc.key)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantUserID, userID)
				assert.Equal(t, tc.wantResumeID, resumeID)
				assert.Equal(t, tc.wantFileName, fileName)
			}
		})
	}
}

func TestResumeHandler_Deliver_NoConnectionDropsSilently(t *testing.T) {
	r := NewRegistry()
	h := NewResumeHandler(r)
	// No connection registered for user 42; must not panic.
	h.Deliver(ResumeReview{Feedback: "ok", Key: "42-7-cv.pdf"})
}

func TestResumeHandler_Deliver_SendsFrameToConnectedUser(t *testing.T) {
	r := NewRegistry()
	conn, err := r.Register(ServiceResume, 42, "jdoe", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewResumeHandler(r)

	h.Deliver(ResumeReview{Feedback: "ok", Key: "42-7-cv.pdf"})

	select {
	case raw := <-conn.send:
		assert.Contains(t, string(raw), "resume_reviewed")
		assert.Contains(t, string(raw), "cv.pdf")
	default:
		t.Fatal("expected a resume_reviewed frame to be enqueued")
	}
}
