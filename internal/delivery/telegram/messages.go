// messages.go contains message templates for Telegram.

package telegram

import (
	"errors"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/service"
)

const (
	msgWelcome = "<b>¡Hola, %s!</b>\n\n" +
		"Aquí puedes evaluar tus competencias con cuestionarios cortos de 3 preguntas.\n" +
		"Cada competencia tiene tres niveles: Básico, Intermedio y Avanzado. " +
		"Aprueba con 2 respuestas correctas para desbloquear la siguiente.\n\n" +
		"Elige un área para empezar:"
	msgHelp = "<b>Comandos</b>\n\n" +
		"/start - elegir un área\n" +
		"/next - qué hacer a continuación\n" +
		"/progress - ver tu progreso\n" +
		"/help - esta ayuda"
	msgUnknownCommand = "Comando desconocido. Escribe /help para ver la lista."
)

// Quiz feedback.
const (
	msgAnswerCorrect   = "✅ <b>¡Correcto!</b>"
	msgAnswerWrong     = "❌ <b>Incorrecto.</b>"
	msgAnswerDuplicate = "Ya habías respondido esa pregunta, se mantiene tu primera respuesta."
	msgPassed          = "✅ <b>¡Aprobado!</b> La siguiente competencia del área ya está disponible."
	msgFailed          = "❌ <b>No aprobado.</b> Necesitas %d respuestas correctas de %d."
	msgAreaCompleted   = "✅ Área completada"
)

// Error messages.
const (
	msgInternalError      = "Algo salió mal. Inténtalo más tarde."
	msgStoreUnavailable   = "El servicio no está disponible en este momento. Inténtalo en unos minutos."
	msgCompetenceLocked   = "🔒 Esta competencia está bloqueada. Completa primero las anteriores del área."
	msgUnknownCompetence  = "No encontramos esa competencia."
	msgNotEnoughQuestions = "Todavía no hay suficientes preguntas para este nivel."
	msgSessionCompleted   = "Este cuestionario ya está terminado."
	msgInvalidAnswer      = "Esa respuesta no es válida."
)

// errorMessage maps an error to the text shown to the user.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrCompetenceLocked):
		return msgCompetenceLocked
	case errors.Is(err, service.ErrUnknownCompetence):
		return msgUnknownCompetence
	case errors.Is(err, entities.ErrInsufficientData):
		return msgNotEnoughQuestions
	case errors.Is(err, entities.ErrSessionCompleted):
		return msgSessionCompleted
	case errors.Is(err, entities.ErrOutOfRange), errors.Is(err, errBadCallback):
		return msgInvalidAnswer
	case errors.Is(err, entities.ErrStoreUnavailable):
		return msgStoreUnavailable
	default:
		return msgInternalError
	}
}
