package enums

type DeadLetterReason string

const (
	DeadLetterReasonMaxAttempts DeadLetterReason = "max_attempts"
)

var validDeadLetterReasons = []DeadLetterReason{
	DeadLetterReasonMaxAttempts,
}

func (r DeadLetterReason) IsValid() bool {
	for _, candidate := range validDeadLetterReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
