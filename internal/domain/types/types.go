// Package types contains the JSON shapes exchanged over HTTP.
package types

// MarkResponse is the body of GET /mark-attendance.
type MarkResponse struct {
	Status string `json:"status"`
	Name   string `json:"name,omitempty"`
	Time   string `json:"time,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

// Record is one attendance row as served by GET /attendance.
type Record struct {
	RollNo int    `json:"rollno"`
	Name   string `json:"name"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Status string `json:"status"`
}

// Student is the body accepted by POST /students.
type Student struct {
	RollNo int    `json:"rollno"`
	Name   string `json:"name"`
	Branch string `json:"branch"`
}

// Enrollment is the body accepted by POST /enrollments/{id}.
type Enrollment struct {
	Samples [][]float32 `json:"samples"`
}

// EnrollmentResult is the body returned by POST /enrollments/{id}.
type EnrollmentResult struct {
	RollNo  int `json:"rollno"`
	Samples int `json:"samples"`
}
