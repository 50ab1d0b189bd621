package intent

// HelpMessage is the condensed command list sent when no intent matches.
func HelpMessage() string {
	return `Commandes FinBot:
- Prix X (ex: Prix AAPL)
- Analyse X (ex: Analyse AAPL)
- Fondamentaux X
- News X
- Marchés / Indices
- Portefeuille
- Aide détaillée`
}

// DetailedHelp is the full command reference behind the HELP intent.
func DetailedHelp() string {
	return `Commandes FinBot:

ACTIONS:
- Prix AAPL - Prix simple
- Fondamentaux AAPL - Ratios financiers
- News AAPL - Actualités
- Analyse AAPL - Analyse complète
- Résultats AAPL - Earnings

MARCHÉS:
- Marchés - Vue indices
- Portefeuille - Vos tickers

ÉCONOMIE:
- Inflation US - Données macro
- Taux Fed - Taux directeur

CALCULS:
- Calcul prêt 300k 25 ans 4.9%
- Variation % 120 145`
}

// SkillsList enumerates example messages for the SKILLS_LIST intent.
func SkillsList() string {
	return `Exemples de messages:
- Prix AAPL
- AAPL vs MSFT
- Fondamentaux NVDA
- Risque TSLA
- Top dividende
- Inflation
- Calcul prêt 300k 25 ans 4.9%`
}
