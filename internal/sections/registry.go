// Copyright 2025 Consent DocGen Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sections holds the static informed consent form section
// definitions and the prompt construction for each section. The registry
// is read-only after startup: initial generation and regeneration must
// resolve the exact same prompt template and retrieval query for a
// section, so there is deliberately no way to mutate an entry.
package sections

import (
	"fmt"
)

// Spec describes one generated section of the consent document
type Spec struct {
	Name             string
	Title            string
	PromptTemplate   string
	RetrievalQuery   string
	TargetLengthHint string
}

// Registry is an immutable name -> Spec lookup table
type Registry struct {
	specs map[string]Spec
	order []string
}

// NewRegistry builds the registry from the built-in section table
func NewRegistry() *Registry {
	return newRegistryFromSpecs(defaultSpecs())
}

// NewRegistryWithSpecs builds a registry from a custom section table,
// used by tests and by deployments with trimmed section sets
func NewRegistryWithSpecs(specs []Spec) (*Registry, error) {
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("section spec with empty name")
		}
		if spec.PromptTemplate == "" || spec.RetrievalQuery == "" {
			return nil, fmt.Errorf("section %q missing prompt template or retrieval query", spec.Name)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate section name %q", spec.Name)
		}
		seen[spec.Name] = true
	}
	return newRegistryFromSpecs(specs), nil
}

func newRegistryFromSpecs(specs []Spec) *Registry {
	r := &Registry{
		specs: make(map[string]Spec, len(specs)),
		order: make([]string, 0, len(specs)),
	}
	for _, spec := range specs {
		r.specs[spec.Name] = spec
		r.order = append(r.order, spec.Name)
	}
	return r
}

// Get returns the spec for a section name
func (r *Registry) Get(name string) (Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns all section names in document order
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns all specs in document order
func (r *Registry) All() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.specs[name])
	}
	return specs
}

// Len returns the number of registered sections
func (r *Registry) Len() int {
	return len(r.specs)
}

// defaultSpecs returns the built-in informed consent form section table.
// Retrieval queries are phrased the way the underlying protocol text talks
// about each topic rather than the way the consent form titles it.
func defaultSpecs() []Spec {
	return []Spec{
		{
			Name:             "summary",
			Title:            "Study Summary",
			PromptTemplate:   "Write a plain-language summary of this clinical study for a prospective participant. Explain in everyday terms what the study is about, who is conducting it, and what participation would involve at a high level.",
			RetrievalQuery:   "study synopsis objectives design overview rationale",
			TargetLengthHint: "2-3 paragraphs",
		},
		{
			Name:             "purpose",
			Title:            "Purpose of the Study",
			PromptTemplate:   "Explain why this study is being done. Describe the condition or question being studied and what the researchers hope to learn, in language a layperson can follow.",
			RetrievalQuery:   "study objectives primary endpoint secondary endpoints rationale background",
			TargetLengthHint: "1-2 paragraphs",
		},
		{
			Name:             "procedures",
			Title:            "Study Procedures",
			PromptTemplate:   "Describe what will happen to a participant during the study: visits, tests, treatments, randomization if any, and what is experimental versus standard care.",
			RetrievalQuery:   "study procedures visit schedule assessments treatment administration randomization",
			TargetLengthHint: "3-5 paragraphs",
		},
		{
			Name:             "duration",
			Title:            "Duration of Participation",
			PromptTemplate:   "State how long participation lasts: total duration, number and length of visits, and any follow-up period.",
			RetrievalQuery:   "study duration treatment period follow-up visit schedule timeline",
			TargetLengthHint: "1 paragraph",
		},
		{
			Name:             "risks",
			Title:            "Risks and Discomforts",
			PromptTemplate:   "Describe the known and foreseeable risks, side effects, and discomforts of the study procedures and study drug or intervention. Be honest and specific; order by frequency and seriousness.",
			RetrievalQuery:   "adverse events side effects risks toxicity safety warnings precautions",
			TargetLengthHint: "3-5 paragraphs",
		},
		{
			Name:             "benefits",
			Title:            "Possible Benefits",
			PromptTemplate:   "Describe possible benefits to the participant and to others, without overstating them. Make clear that benefit is not guaranteed.",
			RetrievalQuery:   "potential benefits efficacy expected outcomes therapeutic effect",
			TargetLengthHint: "1-2 paragraphs",
		},
		{
			Name:             "alternatives",
			Title:            "Alternatives to Participation",
			PromptTemplate:   "Describe the alternatives to joining this study, including standard treatments available outside the study and the option of no treatment.",
			RetrievalQuery:   "standard of care alternative treatments comparator existing therapy",
			TargetLengthHint: "1-2 paragraphs",
		},
		{
			Name:             "confidentiality",
			Title:            "Confidentiality",
			PromptTemplate:   "Explain how the participant's personal and medical information will be collected, used, protected, and who may see it.",
			RetrievalQuery:   "data protection confidentiality privacy records access data handling",
			TargetLengthHint: "1-2 paragraphs",
		},
		{
			Name:             "compensation",
			Title:            "Costs and Compensation",
			PromptTemplate:   "Explain any costs to the participant, any payment or reimbursement for participation, and what happens in case of study-related injury.",
			RetrievalQuery:   "compensation payment reimbursement costs injury insurance",
			TargetLengthHint: "1-2 paragraphs",
		},
		{
			Name:             "voluntary_participation",
			Title:            "Voluntary Participation and Withdrawal",
			PromptTemplate:   "Explain that participation is voluntary, that the participant may withdraw at any time without penalty, and what withdrawal involves.",
			RetrievalQuery:   "withdrawal discontinuation voluntary participation subject rights",
			TargetLengthHint: "1 paragraph",
		},
		{
			Name:             "contacts",
			Title:            "Contact Information",
			PromptTemplate:   "Explain whom the participant should contact with questions about the study, about their rights as a research participant, or in case of injury.",
			RetrievalQuery:   "investigator contact sponsor study site institutional review board",
			TargetLengthHint: "1 paragraph",
		},
	}
}
