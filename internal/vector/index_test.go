package vector

import "testing"

func TestDocumentID(t *testing.T) {
	cases := map[int64]string{
		0:          "repo_0",
		42:         "repo_42",
		1234567890: "repo_1234567890",
	}
	for id, want := range cases {
		if got := DocumentID(id); got != want {
			t.Errorf("DocumentID(%d) = %q, want %q", id, got, want)
		}
	}
}
