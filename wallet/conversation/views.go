package conversation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/wallet/action"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/fulfillment"
	"github.com/m3rciful/walletbot/wallet/notify"
	"github.com/m3rciful/walletbot/wallet/session"
)

var (
	backButton   = notify.Btn("🔙 Volver al Inicio", action.StartBack)
	cancelButton = notify.Btn("❌ Cancelar", action.Cancel)
)

func mainMenu(name string, b domain.Balances, moderator bool) notify.Message {
	if name == "" {
		name = "usuario"
	}
	rows := [][]notify.Button{
		notify.Row(
			notify.Btn("👛 Mi Billetera", action.Wallet),
			notify.Btn("💰 Recargar Billetera", action.RechargeMenu),
		),
		notify.Row(
			notify.Btn("🎮 Recargar Juegos", action.GamesMenu),
			notify.Btn("📜 Historial", action.History),
		),
	}
	if moderator {
		rows = append(rows, notify.Row(notify.Btn("📥 Depósitos pendientes", action.Pending)))
	}
	return notify.Message{
		Text:    fmt.Sprintf("👋 ¡Hola, %s!\n\n%s\n\n¿Qué deseas hacer?", name, balanceLines(b)),
		Buttons: rows,
	}
}

func balanceLines(b domain.Balances) string {
	lines := make([]string, 0, len(domain.Currencies))
	for _, c := range domain.Currencies {
		lines = append(lines, fmt.Sprintf("💰 %s: %s", c.Label(), domain.FormatAmount(b.Get(c), c)))
	}
	return strings.Join(lines, "\n")
}

func cancelled() notify.Message {
	return notify.Message{
		Text:    "✖️ Operación cancelada.",
		Buttons: [][]notify.Button{notify.Row(backButton)},
	}
}

func rechargeMenu() notify.Message {
	row := make([]notify.Button, 0, len(domain.Currencies))
	for _, c := range domain.Currencies {
		row = append(row, notify.Btn(c.Label(), action.DepositInit, string(c)))
	}
	return notify.Message{
		Text:    "💰 Recargar tu Billetera\n\nSelecciona la moneda del depósito:",
		Buttons: [][]notify.Button{row, notify.Row(backButton)},
	}
}

func askAmount(c domain.Currency, r Range) notify.Message {
	return notify.Message{
		Text: fmt.Sprintf("💰 Recargar %s\n\nMínimo: %s\nMáximo: %s\n\nEscribe el monto exacto que deseas depositar:",
			c.Label(), domain.FormatAmount(r.Min, c), domain.FormatAmount(r.Max, c)),
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func invalidAmount(c domain.Currency, r Range) notify.Message {
	return notify.Message{
		Text: fmt.Sprintf("❌ Monto inválido.\n\nDebe ser un número entre %s y %s. Inténtalo de nuevo:",
			domain.FormatAmount(r.Min, c), domain.FormatAmount(r.Max, c)),
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func paymentInstructions(c domain.Currency, amount decimal.Decimal, instructions string) notify.Message {
	if strings.TrimSpace(instructions) == "" {
		instructions = "[NO CONFIGURADO]"
	}
	return notify.Message{
		Text: fmt.Sprintf("💳 Monto: %s\n\n%s\n\n📸 Cuando hayas pagado, envía una foto del comprobante.",
			domain.FormatAmount(amount, c), instructions),
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func depositSubmitted(tx domain.Transaction) notify.Message {
	return notify.Message{
		Text: fmt.Sprintf("⏳ Solicitud #%d enviada.\n\n💰 Monto: %s\n\nUn moderador revisará tu comprobante en breve.",
			tx.ID, domain.FormatAmount(tx.Amount, tx.Currency)),
		Buttons: [][]notify.Button{notify.Row(backButton)},
	}
}

func depositFailed() notify.Message {
	return notify.Message{
		Text:    "❌ No se pudo registrar tu depósito. Por favor, inicia el depósito nuevamente.",
		Buttons: [][]notify.Button{notify.Row(notify.Btn("💰 Recargar", action.RechargeMenu))},
	}
}

func catalog(products []domain.Product) notify.Message {
	if len(products) == 0 {
		return notify.Message{
			Text:    "🎮 No hay productos disponibles en este momento.",
			Buttons: [][]notify.Button{notify.Row(backButton)},
		}
	}
	rows := make([][]notify.Button, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, notify.Row(notify.Btn(productIcon(p)+" "+p.Name, action.Product, p.ID)))
	}
	rows = append(rows, notify.Row(backButton))
	return notify.Message{Text: "🎮 Recargar Juegos\n\nSelecciona un producto:", Buttons: rows}
}

func productDetail(p domain.Product) notify.Message {
	var (
		prices []string
		row    []notify.Button
	)
	for _, c := range domain.Currencies {
		price, ok := p.Price(c)
		if !ok {
			continue
		}
		prices = append(prices, "• "+domain.FormatAmount(price, c))
		row = append(row, notify.Btn("Pagar en "+c.Label(), action.PayNow, p.ID, string(c)))
	}
	if len(row) == 0 {
		return notify.Message{
			Text:    fmt.Sprintf("%s %s\n\nEste producto no tiene precio disponible.", productIcon(p), p.Name),
			Buttons: [][]notify.Button{notify.Row(notify.Btn("🔙 Volver", action.GamesMenu))},
		}
	}
	return notify.Message{
		Text:    fmt.Sprintf("%s %s\n\nPrecios:\n%s\n\nElige cómo pagar:", productIcon(p), p.Name, strings.Join(prices, "\n")),
		Buttons: [][]notify.Button{row, notify.Row(notify.Btn("🔙 Volver", action.GamesMenu))},
	}
}

func productIcon(p domain.Product) string {
	if p.IsPhone() {
		return "📱"
	}
	return "🎮"
}

func productUnavailable() notify.Message {
	return notify.Message{
		Text:    "❌ Producto no disponible.",
		Buttons: [][]notify.Button{notify.Row(notify.Btn("🎮 Ver productos", action.GamesMenu))},
	}
}

func notSoldIn(p domain.Product, c domain.Currency) notify.Message {
	msg := productDetail(p)
	msg.Text = fmt.Sprintf("❌ %s no se vende en %s.\n\n%s", p.Name, c.Label(), msg.Text)
	return msg
}

func insufficientFunds(price, have decimal.Decimal, c domain.Currency) notify.Message {
	return notify.Message{
		Text: fmt.Sprintf("❌ Saldo insuficiente.\n\nPrecio: %s\nTu saldo: %s",
			domain.FormatAmount(price, c), domain.FormatAmount(have, c)),
		Buttons: [][]notify.Button{notify.Row(
			notify.Btn("💰 Recargar", action.RechargeMenu),
			backButton,
		)},
	}
}

func askPlayerID(p domain.Product, price decimal.Decimal, c domain.Currency) notify.Message {
	return notify.Message{
		Text: fmt.Sprintf("🎮 %s\n💰 Costo: %s\n\n🆔 Escribe el ID de tu cuenta de jugador:",
			p.Name, domain.FormatAmount(price, c)),
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func askPhone(p domain.Product, price decimal.Decimal, c domain.Currency) notify.Message {
	return notify.Message{
		Text: fmt.Sprintf("📱 %s\n💰 Costo: %s\n\n📞 Escribe el número de teléfono de destino:\nFormato: 53xxxxxxxx (ej: 5351234567)",
			p.Name, domain.FormatAmount(price, c)),
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func invalidPhone() notify.Message {
	return notify.Message{
		Text:    "❌ Número inválido.\n\nEl número debe comenzar con 53 y tener 10 dígitos.\nEjemplo: 5351234567\n\nInténtalo de nuevo:",
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func priceChanged(p domain.Product) notify.Message {
	msg := productDetail(p)
	msg.Text = "⚠️ El precio cambió mientras completabas la compra. No se descontó saldo.\n\n" + msg.Text
	return msg
}

func askZoneID(p domain.Product) notify.Message {
	return notify.Message{
		Text:    fmt.Sprintf("🎮 %s\n\n🌐 Escribe el ID de zona o servidor:", p.Name),
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func invalidAccountID(step session.Step) notify.Message {
	what := "ID de jugador"
	if step == session.StepAskZoneID {
		what = "ID de zona"
	}
	return notify.Message{
		Text:    fmt.Sprintf("❌ %s inválido.\n\nUsa de 1 a 64 letras, números, '.', '_' o '-'. Inténtalo de nuevo:", what),
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func purchaseCompleted(p domain.Product, res fulfillment.Result, s session.Session) notify.Message {
	status := res.Order.StatusLabel
	if status == "" {
		status = "Procesando"
	}
	c := s.Currency
	text := fmt.Sprintf("✅ Compra realizada\n\n%s %s\n", productIcon(p), p.Name)
	if p.IsPhone() {
		text += "📞 Teléfono: +" + s.Phone + "\n"
	}
	text += fmt.Sprintf("🆔 Orden: %s\n⏳ Estado: %s\n💰 Saldo %s: %s",
		res.Order.OrderID, status, c.Label(), domain.FormatAmount(res.Balances.Get(c), c))
	return notify.Message{
		Text: text,
		Buttons: [][]notify.Button{notify.Row(
			notify.Btn("🔄 Ver estado", action.OrderStatus, res.Order.OrderID),
			backButton,
		)},
	}
}

func purchaseFailed(p domain.Product, reason string) notify.Message {
	text := fmt.Sprintf("❌ No se pudo completar la compra de %s.\n\nNo se descontó saldo de tu billetera.", p.Name)
	if reason != "" {
		text += "\n\n📝 Motivo: " + reason
	}
	return notify.Message{
		Text:    text,
		Buttons: [][]notify.Button{notify.Row(notify.Btn("🎮 Ver productos", action.GamesMenu), backButton)},
	}
}

func internalError() notify.Message {
	return notify.Message{
		Text:    "⚠️ Ocurrió un error interno. Por favor, inténtalo más tarde.",
		Buttons: [][]notify.Button{notify.Row(backButton)},
	}
}

func walletView(b domain.Balances) notify.Message {
	return notify.Message{
		Text: "👛 Mi Billetera\n\n" + balanceLines(b),
		Buttons: [][]notify.Button{
			notify.Row(notify.Btn("💰 Recargar Billetera", action.RechargeMenu), notify.Btn("📜 Historial", action.History)),
			notify.Row(backButton),
		},
	}
}

var statusLabels = map[domain.TxStatus]string{
	domain.StatusPending:   "⏳ Pendiente",
	domain.StatusCompleted: "✅ Completada",
	domain.StatusRejected:  "❌ Rechazada",
}

var kindLabels = map[domain.TxKind]string{
	domain.KindDeposit:  "Depósito",
	domain.KindPurchase: "Compra",
}

func historyView(txs []domain.Transaction) notify.Message {
	buttons := [][]notify.Button{notify.Row(backButton)}
	if len(txs) == 0 {
		return notify.Message{Text: "📜 Aún no tienes movimientos.", Buttons: buttons}
	}
	var b strings.Builder
	b.WriteString("📜 Últimos movimientos\n")
	for _, tx := range txs {
		fmt.Fprintf(&b, "\n#%d %s · %s · %s · %s",
			tx.ID, kindLabels[tx.Kind], domain.FormatAmount(tx.Amount, tx.Currency),
			statusLabels[tx.Status], tx.CreatedAt.Format("02/01/2006 15:04"))
		if tx.Status == domain.StatusRejected && tx.RejectReason != nil && *tx.RejectReason != "" {
			fmt.Fprintf(&b, "\n   📝 %s", *tx.RejectReason)
		}
	}
	return notify.Message{Text: b.String(), Buttons: buttons}
}

func approvedForModerator(tx domain.Transaction) notify.Message {
	return notify.Message{Text: fmt.Sprintf("✅ Depósito #%d aprobado (%s).", tx.ID, domain.FormatAmount(tx.Amount, tx.Currency))}
}

func rejectedForModerator(tx domain.Transaction) notify.Message {
	return notify.Message{Text: fmt.Sprintf("❌ Depósito #%d rechazado.", tx.ID)}
}

func alreadyResolved(txID int64) notify.Message {
	return notify.Message{Text: fmt.Sprintf("ℹ️ La solicitud #%d ya fue resuelta o no existe.", txID)}
}

func askRejectReason(txID int64) notify.Message {
	return notify.Message{
		Text:    fmt.Sprintf("📝 Escribe el motivo del rechazo de la solicitud #%d:", txID),
		Buttons: [][]notify.Button{notify.Row(cancelButton)},
	}
}

func noPending() notify.Message {
	return notify.Message{Text: "📥 No hay depósitos pendientes."}
}

func orderStatusView(orderID string, o fulfillment.Order) notify.Message {
	status := o.StatusLabel
	if status == "" {
		status = "Desconocido"
	}
	return notify.Message{
		Text: fmt.Sprintf("🆔 Orden %s\n⏳ Estado: %s", orderID, status),
		Buttons: [][]notify.Button{notify.Row(
			notify.Btn("🔄 Actualizar", action.OrderStatus, orderID),
			backButton,
		)},
	}
}

func orderStatusUnavailable(orderID string) notify.Message {
	return notify.Message{
		Text:    fmt.Sprintf("⚠️ No se pudo consultar la orden %s. Inténtalo más tarde.", orderID),
		Buttons: [][]notify.Button{notify.Row(backButton)},
	}
}

// promptFor repeats what the current step is waiting for.
func (e *Engine) promptFor(s session.Session) notify.Message {
	switch s.Step {
	case session.StepWaitingAmount:
		return askAmount(s.Currency, e.limits(s.Currency))
	case session.StepWaitingProof:
		return notify.Message{
			Text:    "📸 Envía una foto del comprobante de pago para continuar.",
			Buttons: [][]notify.Button{notify.Row(cancelButton)},
		}
	case session.StepAskPlayerID:
		return notify.Message{Text: "🆔 Escribe el ID de tu cuenta de jugador:", Buttons: [][]notify.Button{notify.Row(cancelButton)}}
	case session.StepAskZoneID:
		return notify.Message{Text: "🌐 Escribe el ID de zona o servidor:", Buttons: [][]notify.Button{notify.Row(cancelButton)}}
	case session.StepAskPhone:
		return notify.Message{Text: "📞 Escribe el número de teléfono de destino (ej: 5351234567):", Buttons: [][]notify.Button{notify.Row(cancelButton)}}
	case session.StepAdmReason:
		return askRejectReason(s.TxID)
	}
	return cancelled()
}
