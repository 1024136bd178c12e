package bridge

// Policy decides what happens to a native value when it is handed to the
// managed environment.
type Policy uint8

const (
	// PolicyAutomatic behaves like PolicyTakeOwnership.
	PolicyAutomatic Policy = iota
	// PolicyAutomaticReference behaves like PolicyReference.
	PolicyAutomaticReference
	// PolicyTakeOwnership wraps the pointer; the wrapper destructs and frees it.
	PolicyTakeOwnership
	// PolicyCopy copy-constructs a new value embedded in the wrapper.
	PolicyCopy
	// PolicyMove move-constructs a new value embedded in the wrapper.
	PolicyMove
	// PolicyReference wraps the pointer without taking ownership.
	PolicyReference
	// PolicyReferenceInternal is PolicyReference plus a keep-alive on the
	// cleanup list's self object.
	PolicyReferenceInternal
	// PolicyNone only returns an existing wrapper.
	PolicyNone
)

var policyNames = [...]string{
	PolicyAutomatic:          "automatic",
	PolicyAutomaticReference: "automatic_reference",
	PolicyTakeOwnership:      "take_ownership",
	PolicyCopy:               "copy",
	PolicyMove:               "move",
	PolicyReference:          "reference",
	PolicyReferenceInternal:  "reference_internal",
	PolicyNone:               "none",
}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return "unknown"
}

// resolve maps the automatic policies onto concrete ones.
func (p Policy) resolve() Policy {
	switch p {
	case PolicyAutomatic:
		return PolicyTakeOwnership
	case PolicyAutomaticReference:
		return PolicyReference
	}
	return p
}
