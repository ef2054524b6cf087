package actioncatalog

import "testing"

func TestExpand_CaseInsensitiveActionMatch(t *testing.T) {
	cat := NewStatic()

	cases := []struct {
		pattern string
		want    string
	}{
		{"s3:getobject", "s3:GetObject"},
		{"S3:GETOBJECT", "s3:GetObject"},
		{"s3:Get*", "s3:GetObject"},
	}

	for _, c := range cases {
		got := Expand(cat, c.pattern)
		if !contains(got, c.want) {
			t.Errorf("Expand(%q) = %v, want it to contain %q", c.pattern, got, c.want)
		}
	}
}

func TestExpand_WildcardService(t *testing.T) {
	cat := NewStatic()
	got := Expand(cat, "*:getcalleridentity")
	if !contains(got, "sts:GetCallerIdentity") {
		t.Errorf("Expand(*:getcalleridentity) = %v, want it to contain sts:GetCallerIdentity", got)
	}
}

func TestComplement_CaseInsensitiveExclusion(t *testing.T) {
	cat := NewStatic()
	got := Complement(cat, "s3", []string{"s3:getobject"})
	if contains(got, "s3:GetObject") {
		t.Errorf("Complement excluded set should drop s3:GetObject regardless of case, got %v", got)
	}
	if !contains(got, "s3:PutObject") {
		t.Errorf("Complement(%v) should still include s3:PutObject", got)
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
