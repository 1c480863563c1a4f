package notify

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

var planNames = map[plan.Plan]string{
	plan.Free:       "Gratuito",
	plan.Plus:       "Plus",
	plan.Pro:        "Pro",
	plan.PlusAnnual: "Plus Anual",
	plan.ProAnnual:  "Pro Anual",
}

// brazil is the display location for dates shown to users.
var brazil = func() *time.Location {
	if loc, err := time.LoadLocation("America/Sao_Paulo"); err == nil {
		return loc
	}
	return time.FixedZone("BRT", -3*60*60)
}()

// Renderer formats notification messages in Brazilian Portuguese.
type Renderer struct {
	p *message.Printer
}

func NewRenderer() *Renderer {
	return &Renderer{p: message.NewPrinter(language.BrazilianPortuguese)}
}

// Money formats d as "R$ 1.234,50".
func (r *Renderer) Money(d decimal.Decimal) string {
	return r.p.Sprintf("R$ %v", number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// Date formats t as dd/mm/yyyy in São Paulo time.
func (r *Renderer) Date(t time.Time) string {
	return t.In(brazil).Format("02/01/2006")
}

func (r *Renderer) Render(n Notification) string {
	name := planName(n.Plan)
	switch n.Kind {
	case KindSubscriptionCreated:
		msg := r.p.Sprintf("Assinatura do plano %s criada.", name)
		if n.Amount != nil {
			msg += r.p.Sprintf(" Valor: %s.", r.Money(*n.Amount))
		}
		if n.ExpiresAt != nil {
			msg += r.p.Sprintf(" Próximo vencimento: %s.", r.Date(*n.ExpiresAt))
		}
		return msg
	case KindPaymentApplied:
		msg := "Pagamento confirmado."
		if n.Amount != nil {
			msg = r.p.Sprintf("Pagamento de %s confirmado.", r.Money(*n.Amount))
		}
		if n.ExpiresAt != nil {
			msg += r.p.Sprintf(" Plano %s ativo até %s.", name, r.Date(*n.ExpiresAt))
		}
		return msg
	case KindPlanChanged:
		if n.ExpiresAt != nil {
			return r.p.Sprintf("Seu plano foi alterado para %s. Válido até %s.", name, r.Date(*n.ExpiresAt))
		}
		return r.p.Sprintf("Seu plano foi alterado para %s.", name)
	case KindDowngradeScheduled:
		if n.ExpiresAt != nil {
			return r.p.Sprintf("A mudança para o plano %s será aplicada na próxima renovação, em %s.", name, r.Date(*n.ExpiresAt))
		}
		return r.p.Sprintf("A mudança para o plano %s será aplicada na próxima renovação.", name)
	case KindUpgradePending:
		if n.Amount != nil {
			return r.p.Sprintf("Para mudar para o plano %s, pague %s.", name, r.Money(*n.Amount))
		}
		return r.p.Sprintf("Para mudar para o plano %s, conclua o pagamento.", name)
	case KindSubscriptionCancelled:
		return r.p.Sprintf("Assinatura cancelada. Seu acesso continua por mais %d dia(s).", n.DaysRemaining)
	case KindSubscriptionDeactivated:
		return "Sua assinatura foi encerrada."
	}
	return ""
}

func planName(p plan.Plan) string {
	if name, ok := planNames[p]; ok {
		return name
	}
	return string(p)
}
