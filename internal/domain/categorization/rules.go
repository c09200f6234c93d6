package categorization

// Rule maps a description keyword onto a budget category. Higher priority
// wins when several keywords match the same description.
type Rule struct {
	Pattern  string
	Category string
	Priority int
}

// Budget categories.
const (
	CategoryFood      = "Alimentação"
	CategoryTransport = "Transporte"
	CategoryServices  = "Serviços"
	CategoryOther     = "Outros"
)

// Categories is the closed set accepted by the ledger.
var Categories = []string{CategoryFood, CategoryTransport, CategoryServices, CategoryOther}

// DefaultRules covers merchants and wording common on Brazilian statements
// and receipts.
var DefaultRules = []Rule{
	{"SUPERMERCADO", CategoryFood, 10},
	{"MERCADO", CategoryFood, 5},
	{"PADARIA", CategoryFood, 10},
	{"RESTAURANTE", CategoryFood, 10},
	{"LANCHONETE", CategoryFood, 10},
	{"IFOOD", CategoryFood, 20},
	{"ACOUGUE", CategoryFood, 10},
	{"AÇOUGUE", CategoryFood, 10},
	{"HORTIFRUTI", CategoryFood, 10},
	{"PIZZARIA", CategoryFood, 10},
	{"ALIMENTACAO", CategoryFood, 5},
	{"ALIMENTAÇÃO", CategoryFood, 5},

	{"UBER", CategoryTransport, 20},
	{"99APP", CategoryTransport, 20},
	{"99 POP", CategoryTransport, 20},
	{"POSTO", CategoryTransport, 10},
	{"COMBUSTIVEL", CategoryTransport, 10},
	{"COMBUSTÍVEL", CategoryTransport, 10},
	{"GASOLINA", CategoryTransport, 10},
	{"ESTACIONAMENTO", CategoryTransport, 10},
	{"PEDAGIO", CategoryTransport, 10},
	{"PEDÁGIO", CategoryTransport, 10},
	{"METRO", CategoryTransport, 5},
	{"ONIBUS", CategoryTransport, 5},
	{"ÔNIBUS", CategoryTransport, 5},

	{"ENERGIA", CategoryServices, 10},
	{"SABESP", CategoryServices, 20},
	{"INTERNET", CategoryServices, 10},
	{"TELEFONE", CategoryServices, 10},
	{"VIVO", CategoryServices, 15},
	{"CLARO", CategoryServices, 15},
	{"NETFLIX", CategoryServices, 20},
	{"SPOTIFY", CategoryServices, 20},
	{"ASSINATURA", CategoryServices, 5},
	{"TARIFA", CategoryServices, 5},
	{"SERVICO", CategoryServices, 5},
	{"SERVIÇO", CategoryServices, 5},
}
