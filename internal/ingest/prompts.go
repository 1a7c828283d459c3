package ingest

const profileSystemPrompt = `You are an expert resume analyst. Extract structured information from resume text.
Respond with ONLY a valid JSON object, no markdown, no commentary, with exactly these keys:
{
  "candidate_name": "full name or empty string",
  "contact_info": "email/phone/location as one line or empty string",
  "key_skills": ["up to 10 most important skills"],
  "experience_years": 0,
  "education": "highest or most recent education as one line",
  "certifications": ["up to 5 certifications"],
  "job_titles": ["up to 3 most recent job titles"],
  "industries": ["up to 3 industries the candidate worked in"]
}
experience_years must be an integer estimate of total professional experience.`

const sectionsSystemPrompt = `You identify the major sections of a resume.
Respond with ONLY a valid JSON array, no markdown, no commentary. Each element:
{"section_name": "canonical section name", "start_position": <integer character offset where the section starts>}
Use canonical names such as "Summary", "Skills", "Experience", "Education", "Certifications", "Projects".
Offsets must be valid positions within the provided text, in increasing order.`

const (
	profileMaxTokens  = 600
	sectionsMaxTokens = 800

	// resumes longer than this are truncated before prompting; sectioning
	// degrades to the sliding window for the remainder
	maxPromptChars = 24000
)
