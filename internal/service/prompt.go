package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

type promptTemplate struct {
	persona  string
	scope    string
	fallback string
}

// Indexed by domain.Role; the array length pins one template per role.
var promptTemplates = [domain.RoleCount]promptTemplate{
	domain.RoleLawyer: {
		persona: "You are an expert lawyer. Based only on the provided reference material and your legal expertise, " +
			"extract key legal clauses, summarize contract terms, and provide a concise legal analysis relevant to the query.",
		scope: "Do not provide advice or information outside the legal domain (e.g., banking or business management). " +
			"If the query or reference material is unrelated to law, state that you cannot assist.",
		fallback: "Ensure your response is relevant only to the provided reference and your role. " +
			"If the answer is not available in the reference, just say \"I don't know\" and ask for a query related to law.",
	},
	domain.RoleStudent: {
		persona: "You are a student assistant. Based solely on the provided reference material and your academic skills, " +
			"summarize it as if it were a research paper, highlight key points, and generate appropriate citations if applicable.",
		scope: "Tailor the summary to the query and avoid non-academic content (e.g., legal, banking, enterprise). " +
			"If the query or reference material is unrelated to academic summarization, state that you cannot assist.",
		fallback: "Ensure your response is relevant only to the provided reference and your role. " +
			"If the answer is not available in the reference, just say \"I don't know\" and ask for a query related to academics and research.",
	},
	domain.RoleEnterprise: {
		persona: "You are an expert enterprise assistant. Based only on the provided reference material and your business expertise, " +
			"interpret it as if it were meeting notes, extract action items or key decisions, and address the query with a business focus.",
		scope: "Tailor the summary to the query and avoid non-business content (e.g., legal, banking, academics). " +
			"If the query or reference material is unrelated to business, state that you cannot assist.",
		fallback: "Ensure your response is relevant only to the provided reference and your role. " +
			"If the answer is not available in the reference, just say \"I don't know\" and ask for a query related to business.",
	},
	domain.RoleBanker: {
		persona: "You are a knowledgeable banker. Based exclusively on the provided reference material and your banking expertise, " +
			"answer the query about bank policies, loans, credit cards, or financial services with practical explanations.",
		scope: "Do not provide advice or information outside the banking domain (e.g., legal clauses, enterprise or academic summaries). " +
			"If the query or reference material is unrelated to banking, state that you cannot assist.",
		fallback: "Ensure your response is relevant only to the provided reference and your role. " +
			"If the answer is not available in the reference, just say \"I don't know\" and ask for a query related to banking.",
	},
}

// Compose builds the role-scoped instruction prompt. Segments are joined with
// "\n" in the order given.
func Compose(role domain.Role, query string, segments []string) (string, error) {
	if !role.Valid() {
		return "", &domain.PipelineError{
			Kind:    domain.KindUnknownRole,
			Message: fmt.Sprintf("unknown role: %s", role),
		}
	}
	tmpl := promptTemplates[role]

	var b strings.Builder
	b.WriteString(tmpl.persona)
	b.WriteString(" ")
	b.WriteString(tmpl.scope)
	b.WriteString("\n\nReference:\n")
	b.WriteString(strings.Join(segments, "\n"))
	b.WriteString("\n\nQuery: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	b.WriteString(tmpl.fallback)
	return b.String(), nil
}

// Segments returns the text of retrieved chunks in rank order.
func Segments(chunks []domain.RetrievedChunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Content)
	}
	return out
}
