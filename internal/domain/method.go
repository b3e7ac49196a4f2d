package domain

// Method identifies which execution path produced a submission.
type Method string

const (
	MethodPrimary   Method = "primary"
	MethodSecondary Method = "secondary"
)

// String returns the string representation of Method.
func (m Method) String() string {
	return string(m)
}

// IsValid checks if the method is a valid value.
func (m Method) IsValid() bool {
	return m == MethodPrimary || m == MethodSecondary
}
