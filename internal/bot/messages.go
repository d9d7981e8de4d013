package bot

const (
	msgUnsupported = "כרגע אני מבין רק הודעות טקסט ותמונות 🙂"

	msgTrialExhausted = "נגמרו היצירות החינמיות שלך 🎁\n" +
		"כדי להמשיך, הירשמו עם \"register האימייל-שלכם\" ואז שלחו \"pay\" לקבלת קישור למנוי."
	msgDailyCap = "הגעת למכסת היצירות היומית של המנוי 🌙 נתראה מחר!"

	msgRegisterUsage  = "כדי להירשם שלחו: register name@example.com"
	msgRegistered     = "נרשמת בהצלחה עם %s ✅\nכדי להפעיל מנוי שלחו pay"
	msgRegisterFirst  = "לפני התשלום צריך להירשם. שלחו: register name@example.com"
	msgPayLink        = "להפעלת מנוי: %s"
	msgPayUnavailable = "התשלום עדיין לא זמין אונליין. כתבו לנו ונעזור 🙏"
	msgSongProgress   = "🎵 מלחין לך שיר... זה יכול לקחת עד 3 דקות"
	msgVideoProgress  = "🎬 מכין את הסרטון... זה יכול לקחת כמה דקות"
	msgEditNeedsPhoto = "שלחו קודם את התמונה שתרצו לערוך 📸"
	msgGenericFailure = "משהו השתבש אצלי, נסו שוב בעוד כמה דקות 🙏"

	msgSongFailed  = "סליחה, לא הצלחתי ליצור את השיר הפעם 😔 נסו שוב או נסחו אחרת."
	msgImageFailed = "סליחה, לא הצלחתי ליצור את התמונה 😔 נסו לנסח את הבקשה אחרת."
	msgVideoFailed = "סליחה, לא הצלחתי ליצור את הסרטון 😔 נסו שוב עם תמונה אחרת."
	msgStillBusy   = "זה לוקח יותר זמן מהרגיל ⏳ הספק עדיין עובד על זה. נסו לשלוח שוב בעוד כמה דקות."
)
