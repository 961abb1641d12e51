package role

// patternsForRole returns the allowed/forbidden regex source strings for a
// role's specialization boundary.
func patternsForRole(r Name) (allowed, forbidden []string) {
	switch r {
	case Frontend:
		return []string{
				`(?i)(react|vue|angular|svelte)`,
				`(?i)(component|jsx|tsx|ui)`,
				`(?i)(css|scss|sass|tailwind|styled)`,
				`(?i)(frontend|client.?side)`,
				`(?i)(state.?management|redux|zustand|mobx)`,
				`(?i)(webpack|vite|rollup|parcel)`,
				`(?i)(jest.*component|testing.?library)`,
			}, []string{
				`(?i)(api|endpoint|rest|graphql)`,
				`(?i)(database|sql|orm|prisma|typeorm)`,
				`(?i)(server|backend|node.*api)`,
				`(?i)(docker|kubernetes|terraform)`,
				`(?i)(auth.*server|jwt.*generate)`,
			}

	case Backend:
		return []string{
				`(?i)(api|endpoint|rest|graphql)`,
				`(?i)(server|backend|microservice)`,
				`(?i)(database|sql|orm|query)`,
				`(?i)(auth|jwt|session|oauth)`,
				`(?i)(express|fastify|nest|koa)`,
				`(?i)(prisma|typeorm|sequelize)`,
			}, []string{
				`(?i)(react|vue|angular|component)`,
				`(?i)(css|scss|tailwind|styling)`,
				`(?i)(ui|user.?interface|frontend)`,
				`(?i)(docker|kubernetes|helm)`,
				`(?i)(terraform|cloudformation)`,
			}

	case DevOps:
		// These forbidden patterns don't catch every application-logic
		// phrasing — e.g. "fix bug in user authentication logic" matches
		// none of them, so Evaluate falls through to Clarify rather than
		// Delegate for that text. See
		// TestDevOpsClarifiesRatherThanDelegatesUnmatchedApplicationBug.
		return []string{
				`(?i)(docker|container|kubernetes)`,
				`(?i)(deploy|deployment|release)`,
				`(?i)(ci/cd|pipeline|jenkins)`,
				`(?i)(terraform|ansible|cloudformation)`,
				`(?i)(aws|gcp|azure|cloud)`,
				`(?i)(monitoring|logging|metrics)`,
			}, []string{
				`(?i)(business.?logic|feature|functionality)`,
				`(?i)(component|ui|frontend.*code)`,
				`(?i)(api.*implementation|endpoint.*logic)`,
				`(?i)(database.*schema|migration.*create)`,
			}

	case QA:
		return []string{
				`(?i)(test|testing|spec|suite)`,
				`(?i)(qa|quality|verification)`,
				`(?i)(jest|cypress|playwright|selenium)`,
				`(?i)(coverage|automation|e2e)`,
				`(?i)(performance.*test|load.*test)`,
				`(?i)(security.*test|penetration)`,
			}, []string{
				`(?i)(implement.*feature|add.*functionality)`,
				`(?i)(fix.*bug.*in.*code|patch.*issue)`,
				`(?i)(deploy|release|infrastructure)`,
				`(?i)(design.*api|create.*endpoint)`,
			}

	case Master:
		return []string{
				`(?i)(coordinate|orchestrate|manage)`,
				`(?i)(review|quality|standard)`,
				`(?i)(architecture|design|planning)`,
			}, []string{
				`(?i)(implement|code|develop)`,
				`(?i)(fix.*bug|patch|hotfix)`,
			}

	default:
		return nil, nil
	}
}
