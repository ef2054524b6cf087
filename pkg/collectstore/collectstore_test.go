package collectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_StripsCommentsAndResolvesLookups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iam-collect.jsonc")
	doc := `{
		// a snapshot of one account
		"resources": {
			"111111111111|arn:aws:s3:::my-bucket|policy": {"Version": "2012-10-17", "Statement": []}
		},
		"org": {},
		"indexes": {
			"buckets-to-accounts|111111111111": ["arn:aws:s3:::my-bucket"]
		}
	}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	client, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	v, found, err := client.GetResource(context.Background(), "111111111111", "arn:aws:s3:::my-bucket", "policy")
	if err != nil {
		t.Fatalf("GetResource failed: %v", err)
	}
	if !found || len(v) == 0 {
		t.Fatalf("expected to find the bucket policy, found=%v", found)
	}

	arns, err := client.GetIndex(context.Background(), "buckets-to-accounts", "111111111111")
	if err != nil {
		t.Fatalf("GetIndex failed: %v", err)
	}
	if len(arns) != 1 || arns[0] != "arn:aws:s3:::my-bucket" {
		t.Fatalf("unexpected index result: %v", arns)
	}
}

func TestMerge_LaterSnapshotOverridesEarlier(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.jsonc")
	pathB := filepath.Join(dir, "b.jsonc")
	os.WriteFile(pathA, []byte(`{"resources": {"1|arn|policy": "old"}, "indexes": {}}`), 0644)
	os.WriteFile(pathB, []byte(`{"resources": {"1|arn|policy": "new"}, "indexes": {}}`), 0644)

	a, err := Load(pathA)
	if err != nil {
		t.Fatalf("Load a: %v", err)
	}
	b, err := Load(pathB)
	if err != nil {
		t.Fatalf("Load b: %v", err)
	}

	merged := Merge(a, b)
	v, found, err := merged.GetResource(context.Background(), "1", "arn", "policy")
	if err != nil {
		t.Fatalf("GetResource failed: %v", err)
	}
	if !found || string(v) != `"new"` {
		t.Fatalf("expected later snapshot to win, got %s", v)
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path.jsonc"); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
