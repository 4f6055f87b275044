package sandbox

// lstrip removes leading empty strings from tokens; once a non-empty token
// is seen, every remaining token (empty or not) is kept unchanged. This
// mirrors the original implementation's iter_lstrip, which strips leading
// falsy arguments because they disturb the interpreter CLI.
func lstrip(tokens []string) []string {
	for i, tok := range tokens {
		if tok != "" {
			return tokens[i:]
		}
	}
	return nil
}
