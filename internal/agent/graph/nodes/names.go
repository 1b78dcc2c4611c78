package nodes

// Graph node keys. Assembler nodes build model messages from state, model
// nodes call the LLM, parser nodes map model text onto closed signals.
const (
	NodeInputResolver = "input_resolver"

	NodeSchemaModel = "schema_context_model"

	NodeRouterAssembler = "router_assembler"
	NodeRouterModel     = "router_model"
	NodeRouteParser     = "route_parser"
	NodeRouteFallback   = "route_fallback"

	NodeQueryAssembler = "query_assembler"
	NodeQueryModel     = "query_model"
	NodeQueryTools     = "query_tools"

	NodeCodeAssembler        = "code_assembler"
	NodeCodeModel            = "code_model"
	NodeRunDecisionAssembler = "run_decision_assembler"
	NodeRunDecisionModel     = "run_decision_model"
	NodeRunDecisionParser    = "run_decision_parser"

	NodeSummarizerAssembler = "summarizer_assembler"
	NodeSummarizerModel     = "summarizer_model"

	NodeScriptRunner      = "script_runner"
	NodeRevisionAssembler = "revision_assembler"
	NodeRevisionModel     = "revision_model"
	NodeRevisionParser    = "revision_parser"

	NodeSynthesisAssembler = "synthesis_assembler"
	NodeSynthesisModel     = "synthesis_model"
)
