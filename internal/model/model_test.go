package model

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"teacher", RoleTeacher, true},
		{"Parent", RoleParent, true},
		{"  TEACHER ", RoleTeacher, true},
		{"student", Role("student"), false},
		{"", Role(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestOwnerForKeepsOneID(t *testing.T) {
	teacher := OwnerFor(RoleTeacher, "class-1", "student-9")
	if teacher.ClassID != "class-1" || teacher.StudentID != "" {
		t.Errorf("teacher owner = %+v", teacher)
	}

	parent := OwnerFor(RoleParent, "class-1", "student-9")
	if parent.StudentID != "student-9" || parent.ClassID != "" {
		t.Errorf("parent owner = %+v", parent)
	}
}
