package qa

import "strings"

// ValidateCreateInput validates fields required to create a record.
func ValidateCreateInput(req CreateRequest) error {
	if strings.TrimSpace(req.ProjectID) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.Title) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.Question) == "" {
		return ErrInvalidInput
	}
	if req.Status != "" {
		if _, ok := ParseStatus(string(req.Status)); !ok {
			return ErrInvalidStatus
		}
	}
	return nil
}

// ValidateAnswerInput validates an answer submission.
func ValidateAnswerInput(req AnswerRequest) error {
	if strings.TrimSpace(req.ID) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.Text) == "" {
		return ErrInvalidInput
	}
	if req.Status != nil {
		if _, ok := ParseStatus(string(*req.Status)); !ok {
			return ErrInvalidStatus
		}
	}
	return nil
}

func cleanParties(parties []string) []string {
	out := make([]string, 0, len(parties))
	seen := make(map[string]struct{}, len(parties))
	for _, party := range parties {
		party = strings.TrimSpace(party)
		if party == "" {
			continue
		}
		if _, dup := seen[party]; dup {
			continue
		}
		seen[party] = struct{}{}
		out = append(out, party)
	}
	return out
}
